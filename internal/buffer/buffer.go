// Package buffer holds the ordered, deduplicated in-memory message sequence
// for a single chat session. Display order is defined here, by
// (createdAt, messageId), never by arrival order: live events and history
// pages may interleave in any completion order and the merge stays
// commutative and idempotent.
package buffer

import (
	"sort"
	"strings"
	"sync"

	"chat-sync-engine/internal/model"
)

const TempIDPrefix = "temp_"

type Buffer struct {
	mu       sync.Mutex
	messages []model.MessageItem
	byID     map[string]struct{}
}

func New() *Buffer {
	return &Buffer{
		byID: make(map[string]struct{}),
	}
}

// Ingest inserts one message, keeping ascending (createdAt, id) order.
// A message whose id is already present is dropped. Appending a message newer
// than everything stored is O(1) amortized; out-of-order arrivals fall back to
// a binary-search insert.
func (b *Buffer) Ingest(message model.MessageItem) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertLocked(message)
}

func (b *Buffer) insertLocked(message model.MessageItem) bool {
	if message.MessageID == "" {
		return false
	}
	if _, dup := b.byID[message.MessageID]; dup {
		return false
	}

	n := len(b.messages)
	if n == 0 || b.messages[n-1].Less(message) {
		b.messages = append(b.messages, message)
		b.byID[message.MessageID] = struct{}{}
		return true
	}

	idx := sort.Search(n, func(i int) bool {
		return message.Less(b.messages[i])
	})
	b.messages = append(b.messages, model.MessageItem{})
	copy(b.messages[idx+1:], b.messages[idx:])
	b.messages[idx] = message
	b.byID[message.MessageID] = struct{}{}
	return true
}

// Prepend merges a page of strictly-older messages at the front. The page is
// expected in ascending order (the pager reverses descending server pages
// before calling). Duplicates and interleaved timestamps are tolerated: each
// entry goes through the same dedup + ordered insert as Ingest.
func (b *Buffer) Prepend(older []model.MessageItem) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := 0
	for _, m := range older {
		if b.insertLocked(m) {
			added++
		}
	}
	return added
}

// ReplaceOptimistic swaps the local optimistic copy for the server-confirmed
// one. The match is content-addressed: temp-id prefix plus content plus
// sender, since no stronger correlation id survives the round trip. Returns
// false when no optimistic copy matched, in which case the confirmed message
// is ingested normally so it is never lost.
func (b *Buffer) ReplaceOptimistic(tempID string, confirmed model.MessageItem) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.messages {
		if !strings.HasPrefix(m.MessageID, TempIDPrefix) {
			continue
		}
		if m.MessageID != tempID {
			continue
		}
		if m.Content != confirmed.Content || m.SenderType != confirmed.SenderType {
			continue
		}

		b.messages = append(b.messages[:i], b.messages[i+1:]...)
		delete(b.byID, m.MessageID)
		b.insertLocked(confirmed)
		return true
	}

	b.insertLocked(confirmed)
	return false
}

// Remove drops a message by id; used to roll back a failed optimistic send.
func (b *Buffer) Remove(messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[messageID]; !ok {
		return false
	}
	for i, m := range b.messages {
		if m.MessageID == messageID {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			break
		}
	}
	delete(b.byID, messageID)
	return true
}

func (b *Buffer) Contains(messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byID[messageID]
	return ok
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Messages returns a copy of the ordered sequence.
func (b *Buffer) Messages() []model.MessageItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.MessageItem, len(b.messages))
	copy(out, b.messages)
	return out
}

// EarliestCreatedAt returns the createdAt of the oldest stored message, used
// as the exclusive upper bound for history paging. Empty string when the
// buffer is empty.
func (b *Buffer) EarliestCreatedAt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return ""
	}
	return b.messages[0].CreatedAt
}

// Reset clears the buffer; called when the active session changes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	b.byID = make(map[string]struct{})
}
