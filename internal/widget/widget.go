// Package widget is the single object a UI shell drives: it composes the
// session controller, message buffer, realtime link, history pager and
// scroll coordinator into one chat surface.
package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"chat-sync-engine/internal/buffer"
	"chat-sync-engine/internal/history"
	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/realtime"
	"chat-sync-engine/internal/scroll"
	"chat-sync-engine/internal/session"
	"chat-sync-engine/internal/store"

	"github.com/google/uuid"
)

type Config struct {
	Source                string
	PollInterval          time.Duration
	MaxReconnectAttempts  int
	HistoryPageSize       int
	NearBottomThresholdPx int
	InitialLoadLimit      int
	// OnUpdate, when set, is invoked after any state change the UI should
	// re-render for. Called from the goroutine that produced the change.
	OnUpdate func()
}

const DefaultInitialLoadLimit = 30

type Widget struct {
	store    store.Store
	cfg      Config
	now      func() time.Time
	sessions *session.Controller
	buffer   *buffer.Buffer
	link     *realtime.Link
	pager    *history.Pager
	scroller *scroll.Coordinator

	mu        sync.Mutex
	open      bool
	minimized bool
	customer  model.CustomerItem
	session   model.SessionItem
}

func New(chatStore store.Store, viewport scroll.Viewport, cfg Config, now func() time.Time) *Widget {
	if now == nil {
		now = time.Now
	}
	if cfg.InitialLoadLimit <= 0 {
		cfg.InitialLoadLimit = DefaultInitialLoadLimit
	}

	buf := buffer.New()
	w := &Widget{
		store:    chatStore,
		cfg:      cfg,
		now:      now,
		sessions: session.NewController(chatStore, cfg.Source, now),
		buffer:   buf,
		pager:    history.NewPager(chatStore, buf, viewport, cfg.HistoryPageSize),
		scroller: scroll.NewCoordinator(viewport, cfg.NearBottomThresholdPx),
	}
	w.link = realtime.NewLink(chatStore, realtime.Config{
		ProbeInterval:        cfg.PollInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, realtime.Handlers{
		OnMessage: w.onRemoteMessage,
		OnSession: w.onRemoteSession,
		OnHealth:  func(model.ConnectionHealth) { w.notify() },
	}, now)
	return w
}

// Open bootstraps the customer and session, loads the visible message window
// and brings the realtime link up. Calling it on an already open widget
// re-runs bootstrap idempotently (double-open lands on the same session).
func (w *Widget) Open(ctx context.Context, info session.CustomerInfo) (model.SessionItem, error) {
	result, err := w.sessions.Bootstrap(ctx, info)
	if err != nil {
		return model.SessionItem{}, err
	}

	w.mu.Lock()
	sessionChanged := w.session.SessionID != result.Session.SessionID
	w.customer = result.Customer
	w.session = result.Session
	w.open = true
	w.minimized = false
	w.mu.Unlock()

	if sessionChanged {
		w.buffer.Reset()
		w.pager.Attach(result.Session.SessionID)
		w.scroller.Reset()
	}

	if err := w.loadInitial(ctx, result.Session.SessionID); err != nil {
		// The session exists; the widget shows what it has and lets the
		// pager retry later. Bootstrap itself stays successful.
		w.scroller.OnOpen()
		w.notify()
		if linkErr := w.link.Open(ctx, result.Session.SessionID, result.Customer.CustomerID); linkErr != nil {
			return result.Session, session.NewError(session.ErrorCodeTransient, "connection failed", linkErr)
		}
		return result.Session, nil
	}

	w.scroller.OnOpen()
	if err := w.link.Open(ctx, result.Session.SessionID, result.Customer.CustomerID); err != nil {
		return result.Session, session.NewError(session.ErrorCodeTransient, "connection failed", err)
	}
	w.notify()
	return result.Session, nil
}

func (w *Widget) loadInitial(ctx context.Context, sessionID string) error {
	page, err := w.store.ListMessages(ctx, sessionID, store.ListOptions{
		Limit: w.cfg.InitialLoadLimit,
		Order: store.OrderDescending,
	})
	if err != nil {
		return err
	}
	for i := len(page) - 1; i >= 0; i-- {
		w.buffer.Ingest(page[i])
	}
	return nil
}

// Send validates, inserts an optimistic local copy, issues the remote write
// and reconciles. A failed write rolls the optimistic copy back and surfaces
// a retryable error; a failed send is never silently dropped.
func (w *Widget) Send(ctx context.Context, text string) (model.MessageItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.MessageItem{}, session.NewError(session.ErrorCodeValidation, "message body is required", nil)
	}

	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return model.MessageItem{}, session.NewError(session.ErrorCodeValidation, "widget is not open", nil)
	}
	if !w.session.Status.IsOpen() {
		w.mu.Unlock()
		return model.MessageItem{}, session.NewError(session.ErrorCodeValidation, "session is closed", nil)
	}
	sess := w.session
	customerID := w.customer.CustomerID
	w.mu.Unlock()

	optimistic := model.MessageItem{
		MessageID:   buffer.TempIDPrefix + uuid.NewString(),
		SessionID:   sess.SessionID,
		SenderType:  model.SenderCustomer,
		SenderID:    customerID,
		MessageType: model.MessageTypeText,
		Content:     text,
		CreatedAt:   model.FormatTimestamp(w.now()),
	}
	w.buffer.Ingest(optimistic)
	w.scroller.OnIngest(optimistic, true)
	w.notify()

	confirmed, err := w.store.InsertMessage(ctx, sess.SessionID, model.SenderCustomer, customerID, model.MessageTypeText, text)
	if err != nil {
		w.buffer.Remove(optimistic.MessageID)
		w.notify()
		return model.MessageItem{}, session.NewError(session.ErrorCodeTransient, "message failed to send", err)
	}

	w.buffer.ReplaceOptimistic(optimistic.MessageID, confirmed)
	w.notify()
	return confirmed, nil
}

// CloseSession ends the conversation; the session is terminal afterwards and
// further sends are rejected.
func (w *Widget) CloseSession(ctx context.Context) error {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()

	if err := w.sessions.Close(ctx, sess); err != nil {
		return err
	}

	w.mu.Lock()
	w.session.Status = model.SessionStatusClosed
	w.session.ClosedAt = w.now().UTC().Format(time.RFC3339)
	w.mu.Unlock()
	w.notify()
	return nil
}

// Close shuts the widget surface. The link teardown is unconditional and
// idempotent; no subscription survives a closed widget.
func (w *Widget) Close() {
	w.link.Close()
	w.mu.Lock()
	w.open = false
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) Minimize() {
	w.mu.Lock()
	w.minimized = true
	w.mu.Unlock()
	w.notify()
}

// Maximize restores a minimized widget: unread resets and the view jumps to
// the newest message.
func (w *Widget) Maximize() {
	w.mu.Lock()
	w.minimized = false
	w.mu.Unlock()
	w.scroller.OnOpen()
	w.notify()
}

// OnScrollTop forwards the scroll-to-top trigger to the history pager.
func (w *Widget) OnScrollTop(ctx context.Context) (int, error) {
	added, err := w.pager.OnScrollTop(ctx)
	if added > 0 {
		w.notify()
	}
	return added, err
}

func (w *Widget) ObserveScroll() {
	w.scroller.ObserveScroll()
}

func (w *Widget) JumpToBottom() {
	w.scroller.JumpToBottom()
	w.notify()
}

// Reconnect is the user-triggered retry out of a degraded link.
func (w *Widget) Reconnect(ctx context.Context) error {
	return w.link.Reconnect(ctx)
}

func (w *Widget) onRemoteMessage(message model.MessageItem) {
	w.mu.Lock()
	currentSession := w.session.SessionID
	customerID := w.customer.CustomerID
	w.mu.Unlock()

	// Tagged with the session at delivery time; a message for a superseded
	// session is stale and dropped.
	if message.SessionID != currentSession {
		return
	}

	own := message.SenderType == model.SenderCustomer && message.SenderID == customerID
	if !w.buffer.Ingest(message) {
		return
	}
	w.scroller.OnIngest(message, own)
	w.notify()
}

func (w *Widget) onRemoteSession(sess model.SessionItem) {
	w.mu.Lock()
	if sess.SessionID != w.session.SessionID {
		w.mu.Unlock()
		return
	}
	w.session = sess
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) notify() {
	if w.cfg.OnUpdate != nil {
		w.cfg.OnUpdate()
	}
}

func (w *Widget) Messages() []model.MessageItem {
	return w.buffer.Messages()
}

func (w *Widget) Unread() int {
	return w.scroller.Unread()
}

func (w *Widget) Session() model.SessionItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

func (w *Widget) Health() model.ConnectionHealth {
	return w.link.Health()
}

// StatusLabel is the user-visible connection/session state. Every state has
// a label; the UI never shows a blank widget.
func (w *Widget) StatusLabel() string {
	health := w.link.Health()
	switch health.Status {
	case model.LinkConnecting:
		return "Connecting..."
	case model.LinkDegraded:
		return "Connection lost - tap to retry"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.session.Status {
	case model.SessionStatusActive:
		return "Agent online"
	case model.SessionStatusClosed:
		return "Conversation closed"
	case model.SessionStatusWaiting, model.SessionStatusTransferred:
		return "Waiting for an agent"
	}
	return "Connecting..."
}
