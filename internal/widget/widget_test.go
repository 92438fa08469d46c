package widget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/session"
	"chat-sync-engine/internal/store"
)

// memoryStore is a full in-memory Store with working change feeds, so the
// widget under test sees its own writes come back over the link the same way
// production does.
type memoryStore struct {
	mu         sync.Mutex
	customers  map[string]model.CustomerItem
	sessions   map[string]model.SessionItem
	messages   map[string][]model.MessageItem
	subs       map[string][]*memorySub
	nextID     int
	clock      time.Time
	failInsert bool
}

type memorySub struct {
	store   *memoryStore
	channel string
	onEvent func(store.Event)
	closed  bool
}

func (s *memorySub) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.closed = true
	return nil
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		customers: make(map[string]model.CustomerItem),
		sessions:  make(map[string]model.SessionItem),
		messages:  make(map[string][]model.MessageItem),
		subs:      make(map[string][]*memorySub),
		clock:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memoryStore) tick() string {
	m.clock = m.clock.Add(time.Second)
	return model.FormatTimestamp(m.clock)
}

func (m *memoryStore) publish(channel string, payload []byte) {
	subs := append([]*memorySub(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, sub := range subs {
		if !sub.closed {
			sub.onEvent(store.Event{Payload: payload})
		}
	}
	m.mu.Lock()
}

func (m *memoryStore) CreateCustomer(ctx context.Context, info store.CustomerInfo) (model.CustomerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer := model.CustomerItem{CustomerID: m.id("customer"), Name: info.Name, Email: info.Email}
	m.customers[customer.Email] = customer
	return customer, nil
}

func (m *memoryStore) FindCustomerByEmail(ctx context.Context, email string) (model.CustomerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.customers[email]
	if !ok {
		return model.CustomerItem{}, store.ErrNotFound
	}
	return customer, nil
}

func (m *memoryStore) CreateSession(ctx context.Context, customerID string, meta store.SessionMeta) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := model.SessionItem{
		SessionID:  m.id("session"),
		CustomerID: customerID,
		Status:     model.SessionStatusWaiting,
		Source:     meta.Source,
		CreatedAt:  m.tick(),
	}
	m.sessions[sess.SessionID] = sess
	return sess, nil
}

func (m *memoryStore) FindOpenSession(ctx context.Context, customerID string) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []model.SessionItem
	for _, s := range m.sessions {
		if s.CustomerID == customerID && (s.Status == model.SessionStatusWaiting || s.Status == model.SessionStatusActive) {
			open = append(open, s)
		}
	}
	if len(open) == 0 {
		return model.SessionItem{}, store.ErrNotFound
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt > open[j].CreatedAt })
	return open[0], nil
}

func (m *memoryStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	sess.Status = status
	m.sessions[sessionID] = sess
	if payload, err := store.EncodeSessionEvent(sess); err == nil {
		m.publish(store.SessionChannel(sess.CustomerID), payload)
	}
	return nil
}

func (m *memoryStore) InsertMessage(ctx context.Context, sessionID string, sender model.SenderType, senderID string, messageType model.MessageType, content string) (model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return model.MessageItem{}, errors.New("network down")
	}
	message := model.MessageItem{
		MessageID:   m.id("message"),
		SessionID:   sessionID,
		SenderType:  sender,
		SenderID:    senderID,
		MessageType: messageType,
		Content:     content,
		CreatedAt:   m.tick(),
	}
	m.messages[sessionID] = append(m.messages[sessionID], message)
	if payload, err := store.EncodeMessageEvent(message); err == nil {
		m.publish(store.MessageChannel(sessionID), payload)
	}
	return message, nil
}

func (m *memoryStore) ListMessages(ctx context.Context, sessionID string, opts store.ListOptions) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.MessageItem(nil), m.messages[sessionID]...)
	if opts.Order == store.OrderDescending {
		sort.Slice(out, func(i, j int) bool { return out[j].Less(out[i]) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	}
	if opts.Before != "" {
		var filtered []model.MessageItem
		for _, msg := range out {
			if msg.CreatedAt < opts.Before {
				filtered = append(filtered, msg)
			}
		}
		out = filtered
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) Subscribe(ctx context.Context, topic store.Topic, filter string, onEvent func(store.Event)) (store.Subscription, error) {
	var channel string
	switch topic {
	case store.TopicMessages:
		channel = store.MessageChannel(filter)
	case store.TopicSession:
		channel = store.SessionChannel(filter)
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySub{store: m, channel: channel, onEvent: onEvent}
	m.subs[channel] = append(m.subs[channel], sub)
	return sub, nil
}

func (m *memoryStore) ProbeHealth(ctx context.Context) (store.Health, error) {
	return store.Health{Alive: true}, nil
}

func (m *memoryStore) ForceReconnect(ctx context.Context) error { return nil }

type stubViewport struct {
	mu           sync.Mutex
	scrollTop    int
	scrollHeight int
	clientHeight int
}

func (v *stubViewport) ScrollTop() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop
}
func (v *stubViewport) ScrollHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollHeight
}
func (v *stubViewport) ClientHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clientHeight
}
func (v *stubViewport) SetScrollTop(px int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop = px
}

func newTestWidget(st store.Store) *Widget {
	return New(st, &stubViewport{scrollHeight: 400, clientHeight: 400}, Config{
		Source:       "widget",
		PollInterval: time.Hour,
	}, nil)
}

func TestFullConversationLifecycle(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()
	ctx := context.Background()

	sess, err := w.Open(ctx, session.CustomerInfo{Name: "Ana", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if sess.Status != model.SessionStatusWaiting {
		t.Fatalf("expected waiting, got %s", sess.Status)
	}
	if got := w.StatusLabel(); got != "Waiting for an agent" {
		t.Fatalf("unexpected status label %q", got)
	}

	if _, err := w.Send(ctx, "Hi"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	messages := w.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected [welcome, Hi], got %d messages", len(messages))
	}
	if messages[0].SenderType != model.SenderSystem {
		t.Fatalf("first message should be the system welcome, got %s", messages[0].SenderType)
	}
	if messages[1].Content != "Hi" {
		t.Fatalf("second message should be Hi, got %q", messages[1].Content)
	}

	// Agent claims the session from the console side.
	if err := st.UpdateSessionStatus(ctx, sess.SessionID, model.SessionStatusActive); err != nil {
		t.Fatalf("agent claim error: %v", err)
	}
	if got := w.Session().Status; got != model.SessionStatusActive {
		t.Fatalf("expected active after agent claim, got %s", got)
	}
	if got := w.StatusLabel(); got != "Agent online" {
		t.Fatalf("unexpected status label %q", got)
	}

	if err := w.CloseSession(ctx); err != nil {
		t.Fatalf("CloseSession error: %v", err)
	}
	if got := w.StatusLabel(); got != "Conversation closed" {
		t.Fatalf("unexpected status label %q", got)
	}

	_, err = w.Send(ctx, "too late")
	if err == nil {
		t.Fatal("send after close must be rejected")
	}
	if session.CodeOf(err) != session.ErrorCodeValidation {
		t.Fatalf("expected validation error, got %s", session.CodeOf(err))
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()

	if _, err := w.Open(context.Background(), session.CustomerInfo{Email: "a@b.com"}); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_, err := w.Send(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if session.CodeOf(err) != session.ErrorCodeValidation {
		t.Fatalf("expected validation code, got %s", session.CodeOf(err))
	}
}

func TestOptimisticSendReconciles(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()
	ctx := context.Background()

	if _, err := w.Open(ctx, session.CustomerInfo{Email: "a@b.com"}); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	// The memory store publishes the confirmed copy over the live feed
	// before the write returns, so reconciliation races the event delivery
	// exactly like production. Exactly one "hello" must survive.
	if _, err := w.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	count := 0
	for _, m := range w.Messages() {
		if m.Content == "hello" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one hello, got %d", count)
	}
}

func TestFailedSendRollsBackAndRetries(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()
	ctx := context.Background()

	if _, err := w.Open(ctx, session.CustomerInfo{Email: "a@b.com"}); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	baseline := len(w.Messages())

	st.mu.Lock()
	st.failInsert = true
	st.mu.Unlock()

	_, err := w.Send(ctx, "hello")
	if err == nil {
		t.Fatal("expected send failure")
	}
	if session.CodeOf(err) != session.ErrorCodeTransient {
		t.Fatalf("expected transient code, got %s", session.CodeOf(err))
	}
	if len(w.Messages()) != baseline {
		t.Fatalf("failed send left an optimistic message behind: %d messages", len(w.Messages()))
	}

	// Back online: the retry lands exactly one copy.
	st.mu.Lock()
	st.failInsert = false
	st.mu.Unlock()

	if _, err := w.Send(ctx, "hello"); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	count := 0
	for _, m := range w.Messages() {
		if m.Content == "hello" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one hello after retry, got %d", count)
	}
}

func TestReopenResumesSameSessionWithHistory(t *testing.T) {
	st := newMemoryStore()
	ctx := context.Background()

	first := newTestWidget(st)
	sess, err := first.Open(ctx, session.CustomerInfo{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := first.Send(ctx, "before close"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	first.Close()

	second := newTestWidget(st)
	defer second.Close()
	resumed, err := second.Open(ctx, session.CustomerInfo{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if resumed.SessionID != sess.SessionID {
		t.Fatal("reopen should resume the same open session")
	}

	var contents []string
	for _, m := range second.Messages() {
		contents = append(contents, m.Content)
	}
	if len(contents) != 2 || contents[1] != "before close" {
		t.Fatalf("resumed widget should load history, got %v", contents)
	}
}

func TestAgentMessageFromAnotherSurfaceArrives(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()
	ctx := context.Background()

	sess, err := w.Open(ctx, session.CustomerInfo{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	// The agent console writes through the shared store.
	if _, err := st.InsertMessage(ctx, sess.SessionID, model.SenderAgent, "agent-1", model.MessageTypeText, "how can I help?"); err != nil {
		t.Fatalf("agent insert error: %v", err)
	}

	messages := w.Messages()
	last := messages[len(messages)-1]
	if last.Content != "how can I help?" || last.SenderType != model.SenderAgent {
		t.Fatalf("agent message did not arrive, last = %+v", last)
	}
}

func TestMessageForSupersededSessionDiscarded(t *testing.T) {
	st := newMemoryStore()
	w := newTestWidget(st)
	defer w.Close()
	ctx := context.Background()

	sess, err := w.Open(ctx, session.CustomerInfo{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := w.CloseSession(ctx); err != nil {
		t.Fatalf("CloseSession error: %v", err)
	}

	// Reopen starts a new session for the same customer.
	fresh, err := w.Open(ctx, session.CustomerInfo{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if fresh.SessionID == sess.SessionID {
		t.Fatal("expected a fresh session after close")
	}

	// A message addressed to the old session must not surface.
	w.onRemoteMessage(model.MessageItem{
		MessageID:   "stray-1",
		SessionID:   sess.SessionID,
		SenderType:  model.SenderAgent,
		MessageType: model.MessageTypeText,
		Content:     "stale",
		CreatedAt:   "2024-03-01T10:30:00Z",
	})

	for _, m := range w.Messages() {
		if m.MessageID == "stray-1" {
			t.Fatal("message for superseded session must be discarded")
		}
	}
}
