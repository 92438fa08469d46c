// Package history backfills older message pages when the user scrolls to the
// top of the conversation, keeping the message they were reading anchored in
// place while content grows above it.
package history

import (
	"context"
	"log"
	"sync"

	"chat-sync-engine/internal/buffer"
	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/scroll"
	"chat-sync-engine/internal/store"
)

const (
	DefaultPageSize = 20
	MinPageSize     = 15
	MaxPageSize     = 30
)

type Pager struct {
	store    store.Store
	buffer   *buffer.Buffer
	viewport scroll.Viewport
	pageSize int

	mu        sync.Mutex
	sessionID string
	inFlight  bool
	hasMore   bool
}

func NewPager(chatStore store.Store, buf *buffer.Buffer, viewport scroll.Viewport, pageSize int) *Pager {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return &Pager{
		store:    chatStore,
		buffer:   buf,
		viewport: viewport,
		pageSize: pageSize,
	}
}

// Attach points the pager at a session and re-arms paging. Called on
// bootstrap and whenever the active session changes.
func (p *Pager) Attach(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.inFlight = false
	p.hasMore = true
}

func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// OnScrollTop is the scroll-to-top trigger. It fetches one page of messages
// strictly older than the earliest buffered one, merges it, and restores the
// viewport anchor. A trigger while a fetch is pending, or after the history
// is exhausted, is a no-op. A transient fetch failure leaves hasMore alone so
// a later scroll-to-top retries.
func (p *Pager) OnScrollTop(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.inFlight || !p.hasMore || p.sessionID == "" {
		p.mu.Unlock()
		return 0, nil
	}
	p.inFlight = true
	sessionID := p.sessionID
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	before := p.buffer.EarliestCreatedAt()
	page, err := p.store.ListMessages(ctx, sessionID, store.ListOptions{
		Before: before,
		Limit:  p.pageSize,
		Order:  store.OrderDescending,
	})
	if err != nil {
		log.Printf("history: page fetch for %s failed: %v", sessionID, err)
		return 0, err
	}

	p.mu.Lock()
	// A session switch while the fetch was in flight makes this page stale.
	if sessionID != p.sessionID {
		p.mu.Unlock()
		return 0, nil
	}
	if len(page) == 0 {
		p.hasMore = false
		p.mu.Unlock()
		return 0, nil
	}
	p.mu.Unlock()

	// The store answers newest-first; the buffer wants ascending batches.
	reverse(page)

	oldHeight := p.viewport.ScrollHeight()
	added := p.buffer.Prepend(page)
	// Anchor preservation: whatever grew above the fold pushes scrollTop
	// down by the same amount, so the message at the top edge stays put.
	// The UI shell applies SetScrollTop after layout.
	newHeight := p.viewport.ScrollHeight()
	if added > 0 && newHeight > oldHeight {
		p.viewport.SetScrollTop(p.viewport.ScrollTop() + (newHeight - oldHeight))
	}

	return added, nil
}

func reverse(messages []model.MessageItem) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
