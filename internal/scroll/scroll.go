// Package scroll decides what the UI does when messages arrive: follow the
// conversation when the user is already reading the newest messages, or count
// unread ones and leave the viewport alone when they have scrolled up.
package scroll

import (
	"sync"

	"chat-sync-engine/internal/model"
)

const DefaultNearBottomThresholdPx = 50

// Viewport is the scrollable message container, implemented by the UI shell.
// All measurements are pixels. SetScrollTop must be applied after layout of
// any content change that preceded it.
type Viewport interface {
	ScrollTop() int
	ScrollHeight() int
	ClientHeight() int
	SetScrollTop(px int)
}

type Coordinator struct {
	mu        sync.Mutex
	viewport  Viewport
	threshold int

	atBottom bool
	unread   int
}

func NewCoordinator(viewport Viewport, nearBottomThresholdPx int) *Coordinator {
	if nearBottomThresholdPx <= 0 {
		nearBottomThresholdPx = DefaultNearBottomThresholdPx
	}
	return &Coordinator{
		viewport:  viewport,
		threshold: nearBottomThresholdPx,
		atBottom:  true,
	}
}

// ObserveScroll is called on every scroll event from the UI shell.
func (c *Coordinator) ObserveScroll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atBottom = c.nearBottomLocked()
	if c.atBottom {
		c.unread = 0
	}
}

func (c *Coordinator) nearBottomLocked() bool {
	distance := c.viewport.ScrollHeight() - c.viewport.ScrollTop() - c.viewport.ClientHeight()
	return distance <= c.threshold
}

// OnIngest reacts to one newly stored message: auto-scroll when the user is
// at the bottom or authored it themselves, otherwise count it as unread and
// leave the position untouched.
func (c *Coordinator) OnIngest(message model.MessageItem, ownMessage bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ownMessage || c.atBottom {
		c.scrollToBottomLocked()
		c.unread = 0
		return
	}
	c.unread++
}

// OnOpen handles opening/maximizing the widget: unread resets and the view
// jumps to the newest message.
func (c *Coordinator) OnOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrollToBottomLocked()
	c.unread = 0
}

// JumpToBottom is the "N new messages" affordance.
func (c *Coordinator) JumpToBottom() {
	c.OnOpen()
}

func (c *Coordinator) scrollToBottomLocked() {
	c.viewport.SetScrollTop(c.viewport.ScrollHeight() - c.viewport.ClientHeight())
	c.atBottom = true
}

func (c *Coordinator) IsAtBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atBottom
}

func (c *Coordinator) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Reset clears unread state for a fresh session.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread = 0
	c.atBottom = true
}
