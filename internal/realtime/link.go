// Package realtime keeps one chat surface subscribed to its session's change
// feeds and owns the connection-health state machine:
//
//	connecting -> subscribed -> degraded -> connecting (retry) -> subscribed | closed
//
// Delivery is at-least-once and unordered; duplicates and ordering are the
// message buffer's problem, staleness (events from a superseded link) is
// handled here with a generation counter.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/store"
)

const (
	DefaultProbeInterval        = 10 * time.Second
	DefaultMaxReconnectAttempts = 3

	// A link with no event and no healthy probe for this many probe
	// intervals counts as unhealthy even if the transport never errored.
	staleProbeIntervals = 3
)

type Config struct {
	ProbeInterval        time.Duration
	MaxReconnectAttempts int
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return c
}

type Handlers struct {
	OnMessage func(model.MessageItem)
	OnSession func(model.SessionItem)
	OnHealth  func(model.ConnectionHealth)
}

type Link struct {
	store store.Store
	cfg   Config
	now   func() time.Time

	mu                sync.Mutex
	epoch             uint64
	status            model.LinkStatus
	lastEventAt       time.Time
	lastAliveAt       time.Time
	reconnectAttempts int

	sessionID  string
	customerID string
	messageSub store.Subscription
	sessionSub store.Subscription
	probeStop  chan struct{}

	handlers Handlers
}

func NewLink(chatStore store.Store, cfg Config, handlers Handlers, now func() time.Time) *Link {
	if now == nil {
		now = time.Now
	}
	return &Link{
		store:    chatStore,
		cfg:      cfg.withDefaults(),
		now:      now,
		status:   model.LinkClosed,
		handlers: handlers,
	}
}

// Open tears down any previous link, bumps the generation counter and
// establishes the two logical subscriptions for the session. The old link is
// fully closed before the new one exists, so two live links never overlap.
func (l *Link) Open(ctx context.Context, sessionID, customerID string) error {
	l.mu.Lock()
	l.teardownLocked()
	l.epoch++
	epoch := l.epoch
	l.sessionID = sessionID
	l.customerID = customerID
	l.reconnectAttempts = 0
	l.setStatusLocked(model.LinkConnecting)
	l.mu.Unlock()

	return l.subscribe(ctx, epoch)
}

// subscribe establishes both feeds for the given epoch and starts the health
// probe. No-op when the epoch has already been superseded.
func (l *Link) subscribe(ctx context.Context, epoch uint64) error {
	l.mu.Lock()
	if epoch != l.epoch {
		l.mu.Unlock()
		return nil
	}
	sessionID, customerID := l.sessionID, l.customerID
	l.mu.Unlock()

	msgSub, err := l.store.Subscribe(ctx, store.TopicMessages, sessionID, func(ev store.Event) {
		l.deliverMessage(epoch, ev)
	})
	if err != nil {
		return err
	}

	sessSub, err := l.store.Subscribe(ctx, store.TopicSession, customerID, func(ev store.Event) {
		l.deliverSession(epoch, ev)
	})
	if err != nil {
		_ = msgSub.Close()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if epoch != l.epoch {
		// Superseded while subscribing; release immediately.
		_ = msgSub.Close()
		_ = sessSub.Close()
		return nil
	}
	l.messageSub = msgSub
	l.sessionSub = sessSub
	now := l.now()
	l.lastEventAt = now
	l.lastAliveAt = now
	l.setStatusLocked(model.LinkSubscribed)

	if l.probeStop == nil {
		stop := make(chan struct{})
		l.probeStop = stop
		go l.probeLoop(stop)
	}
	return nil
}

func (l *Link) deliverMessage(epoch uint64, ev store.Event) {
	l.mu.Lock()
	if epoch != l.epoch {
		l.mu.Unlock()
		dropEvent("stale")
		return
	}
	now := l.now()
	l.lastEventAt = now
	l.lastAliveAt = now
	l.reconnectAttempts = 0
	onMessage := l.handlers.OnMessage
	l.mu.Unlock()

	message, err := store.DecodeMessageEvent(ev.Payload)
	if err != nil {
		log.Printf("realtime: dropping malformed message event: %v", err)
		dropEvent("malformed")
		return
	}
	linkEvents.Inc()
	if onMessage != nil {
		onMessage(message)
	}
}

func (l *Link) deliverSession(epoch uint64, ev store.Event) {
	l.mu.Lock()
	if epoch != l.epoch {
		l.mu.Unlock()
		dropEvent("stale")
		return
	}
	now := l.now()
	l.lastEventAt = now
	l.lastAliveAt = now
	onSession := l.handlers.OnSession
	l.mu.Unlock()

	sess, err := store.DecodeSessionEvent(ev.Payload)
	if err != nil {
		log.Printf("realtime: dropping malformed session event: %v", err)
		dropEvent("malformed")
		return
	}
	linkEvents.Inc()
	if onSession != nil {
		onSession(sess)
	}
}

func (l *Link) probeLoop(stop chan struct{}) {
	ticker := time.NewTicker(l.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.probeTick()
		}
	}
}

// probeTick checks the explicit liveness signal and time since the last sign
// of life. An unhealthy link is forced to reconnect until the attempt limit
// runs out; after that it parks in degraded until the caller asks for an
// explicit Reconnect.
func (l *Link) probeTick() {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ProbeInterval)
	defer cancel()

	health, err := l.store.ProbeHealth(ctx)
	alive := err == nil && health.Alive

	l.mu.Lock()
	if l.status == model.LinkClosed || l.status == model.LinkDegraded {
		l.mu.Unlock()
		return
	}

	now := l.now()
	stale := now.Sub(l.lastAliveAt) > time.Duration(staleProbeIntervals)*l.cfg.ProbeInterval
	// A healthy ping only keeps the link subscribed while both feeds are
	// actually live; after a failed resubscribe they are nil and the link
	// must keep retrying.
	feedsLive := l.messageSub != nil && l.sessionSub != nil
	if alive && !stale && feedsLive {
		l.lastAliveAt = now
		l.reconnectAttempts = 0
		if l.status != model.LinkSubscribed {
			l.setStatusLocked(model.LinkSubscribed)
		}
		l.mu.Unlock()
		return
	}

	if l.reconnectAttempts >= l.cfg.MaxReconnectAttempts {
		l.setStatusLocked(model.LinkDegraded)
		linkDegraded.Inc()
		l.mu.Unlock()
		log.Printf("realtime: link for session %s degraded after %d reconnect attempts", l.sessionID, l.reconnectAttempts)
		return
	}

	l.reconnectAttempts++
	l.closeSubsLocked()
	l.epoch++
	epoch := l.epoch
	l.setStatusLocked(model.LinkConnecting)
	l.mu.Unlock()

	linkReconnects.Inc()
	if err := l.store.ForceReconnect(ctx); err != nil {
		log.Printf("realtime: force reconnect failed: %v", err)
	}
	if err := l.subscribe(ctx, epoch); err != nil {
		log.Printf("realtime: resubscribe failed: %v", err)
	}
}

// Reconnect is the explicit caller-triggered retry out of degraded. It resets
// the attempt counter and dials fresh subscriptions for the current session.
func (l *Link) Reconnect(ctx context.Context) error {
	l.mu.Lock()
	if l.sessionID == "" || l.status == model.LinkClosed {
		l.mu.Unlock()
		return nil
	}
	l.closeSubsLocked()
	l.epoch++
	epoch := l.epoch
	l.reconnectAttempts = 0
	l.setStatusLocked(model.LinkConnecting)
	l.mu.Unlock()

	if err := l.store.ForceReconnect(ctx); err != nil {
		log.Printf("realtime: force reconnect failed: %v", err)
	}
	return l.subscribe(ctx, epoch)
}

// Close tears down both subscriptions and the probe timer. Idempotent; every
// lifecycle exit path of the widget calls it.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()
	l.epoch++
	if l.status != model.LinkClosed {
		l.setStatusLocked(model.LinkClosed)
	}
}

func (l *Link) teardownLocked() {
	l.closeSubsLocked()
	if l.probeStop != nil {
		close(l.probeStop)
		l.probeStop = nil
	}
}

func (l *Link) closeSubsLocked() {
	if l.messageSub != nil {
		_ = l.messageSub.Close()
		l.messageSub = nil
	}
	if l.sessionSub != nil {
		_ = l.sessionSub.Close()
		l.sessionSub = nil
	}
}

func (l *Link) setStatusLocked(status model.LinkStatus) {
	l.status = status
	if l.handlers.OnHealth != nil {
		health := model.ConnectionHealth{
			Status:            status,
			LastEventAt:       l.lastEventAt,
			ReconnectAttempts: l.reconnectAttempts,
		}
		// Deliver outside the lock to keep callbacks free to call back in.
		go l.handlers.OnHealth(health)
	}
}

func (l *Link) Health() model.ConnectionHealth {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.ConnectionHealth{
		Status:            l.status,
		LastEventAt:       l.lastEventAt,
		ReconnectAttempts: l.reconnectAttempts,
	}
}

func (l *Link) Status() model.LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}
