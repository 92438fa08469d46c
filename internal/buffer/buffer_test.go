package buffer

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"chat-sync-engine/internal/model"
)

func makeMessage(id string, at time.Time) model.MessageItem {
	return model.MessageItem{
		MessageID:   id,
		SessionID:   "session-1",
		SenderType:  model.SenderCustomer,
		MessageType: model.MessageTypeText,
		Content:     "content-" + id,
		CreatedAt:   at.UTC().Format(time.RFC3339Nano),
	}
}

func assertOrdered(t *testing.T, b *Buffer) {
	t.Helper()
	messages := b.Messages()
	for i := 1; i < len(messages); i++ {
		if messages[i].Less(messages[i-1]) {
			t.Fatalf("order violated at %d: %s (%s) before %s (%s)",
				i, messages[i-1].MessageID, messages[i-1].CreatedAt,
				messages[i].MessageID, messages[i].CreatedAt)
		}
	}
}

func TestIngestIdempotent(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := makeMessage("m-1", base)

	if !b.Ingest(m) {
		t.Fatal("first ingest should store the message")
	}
	if b.Ingest(m) {
		t.Fatal("second ingest of the same id should be a no-op")
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", b.Len())
	}
}

func TestIngestAppendsNewest(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.Ingest(makeMessage(fmt.Sprintf("m-%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	assertOrdered(t, b)
	if b.Len() != 5 {
		t.Fatalf("expected 5 messages, got %d", b.Len())
	}
}

func TestIngestOutOfOrderArrival(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	b.Ingest(makeMessage("m-3", base.Add(3*time.Second)))
	b.Ingest(makeMessage("m-1", base.Add(1*time.Second)))
	b.Ingest(makeMessage("m-2", base.Add(2*time.Second)))

	messages := b.Messages()
	want := []string{"m-1", "m-2", "m-3"}
	for i, id := range want {
		if messages[i].MessageID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, messages[i].MessageID)
		}
	}
}

func TestOrderInvariantUnderRandomInterleaving(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		b := New()
		var all []model.MessageItem
		for i := 0; i < 40; i++ {
			all = append(all, makeMessage(fmt.Sprintf("m-%02d", i), base.Add(time.Duration(i)*time.Second)))
		}
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

		// Mix single ingests with prepended batches, in arrival order that
		// has nothing to do with causal order.
		for len(all) > 0 {
			if rng.Intn(2) == 0 || len(all) < 3 {
				b.Ingest(all[0])
				all = all[1:]
			} else {
				n := 1 + rng.Intn(3)
				b.Prepend(all[:n])
				all = all[n:]
			}
		}

		assertOrdered(t, b)
		if b.Len() != 40 {
			t.Fatalf("trial %d: expected 40 messages, got %d", trial, b.Len())
		}
	}
}

func TestIdenticalTimestampsTieBrokenByID(t *testing.T) {
	b := New()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	b.Ingest(makeMessage("b", at))
	b.Ingest(makeMessage("a", at))
	b.Ingest(makeMessage("c", at))

	messages := b.Messages()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if messages[i].MessageID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, messages[i].MessageID)
		}
	}
}

func TestPrependOlderPage(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	b.Ingest(makeMessage("live-1", base.Add(100*time.Second)))
	b.Ingest(makeMessage("live-2", base.Add(101*time.Second)))

	page := []model.MessageItem{
		makeMessage("old-1", base.Add(1*time.Second)),
		makeMessage("old-2", base.Add(2*time.Second)),
		makeMessage("old-3", base.Add(3*time.Second)),
	}
	added := b.Prepend(page)
	if added != 3 {
		t.Fatalf("expected 3 added, got %d", added)
	}

	messages := b.Messages()
	if messages[0].MessageID != "old-1" || messages[len(messages)-1].MessageID != "live-2" {
		t.Fatalf("unexpected boundaries: %s .. %s", messages[0].MessageID, messages[len(messages)-1].MessageID)
	}
	assertOrdered(t, b)

	// A duplicated page (retry across a flaky fetch) changes nothing.
	if added := b.Prepend(page); added != 0 {
		t.Fatalf("duplicate prepend added %d messages", added)
	}
	if b.Len() != 5 {
		t.Fatalf("expected 5 messages, got %d", b.Len())
	}
}

func TestReplaceOptimistic(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	optimistic := makeMessage(TempIDPrefix+"abc", base)
	optimistic.Content = "hello"
	b.Ingest(optimistic)

	confirmed := makeMessage("server-1", base.Add(time.Second))
	confirmed.Content = "hello"

	if !b.ReplaceOptimistic(optimistic.MessageID, confirmed) {
		t.Fatal("expected optimistic copy to be replaced")
	}
	if b.Len() != 1 {
		t.Fatalf("expected exactly 1 message, got %d", b.Len())
	}
	if b.Messages()[0].MessageID != "server-1" {
		t.Fatalf("expected server copy, got %s", b.Messages()[0].MessageID)
	}
}

func TestReplaceOptimisticAfterLiveEventDuplicate(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	optimistic := makeMessage(TempIDPrefix+"abc", base)
	optimistic.Content = "hello"
	b.Ingest(optimistic)

	// The realtime link can deliver the confirmed copy before the write
	// resolves; reconciliation must still end with exactly one "hello".
	confirmed := makeMessage("server-1", base.Add(time.Second))
	confirmed.Content = "hello"
	b.Ingest(confirmed)

	b.ReplaceOptimistic(optimistic.MessageID, confirmed)

	count := 0
	for _, m := range b.Messages() {
		if m.Content == "hello" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one hello, got %d", count)
	}
}

func TestReplaceOptimisticContentMismatchKeepsConfirmed(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	optimistic := makeMessage(TempIDPrefix+"abc", base)
	optimistic.Content = "hello"
	b.Ingest(optimistic)

	confirmed := makeMessage("server-1", base.Add(time.Second))
	confirmed.Content = "different"

	if b.ReplaceOptimistic(optimistic.MessageID, confirmed) {
		t.Fatal("mismatched content should not match the optimistic copy")
	}
	// The confirmed message is kept regardless so nothing is lost.
	if !b.Contains("server-1") {
		t.Fatal("confirmed message should be stored")
	}
}

func TestRemove(t *testing.T) {
	b := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := makeMessage(TempIDPrefix+"x", base)
	b.Ingest(m)

	if !b.Remove(m.MessageID) {
		t.Fatal("expected removal")
	}
	if b.Remove(m.MessageID) {
		t.Fatal("second removal should be a no-op")
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", b.Len())
	}
}

func TestEarliestCreatedAt(t *testing.T) {
	b := New()
	if b.EarliestCreatedAt() != "" {
		t.Fatal("empty buffer should report empty earliest timestamp")
	}
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b.Ingest(makeMessage("m-2", base.Add(2*time.Second)))
	b.Ingest(makeMessage("m-1", base.Add(1*time.Second)))

	want := base.Add(1 * time.Second).UTC().Format(time.RFC3339Nano)
	if got := b.EarliestCreatedAt(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
