// Package session owns the customer/session lifecycle for one chat surface.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/store"
)

const welcomeMessage = "Welcome! An agent will be with you shortly."

type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

type BootstrapResult struct {
	Customer model.CustomerItem
	Session  model.SessionItem
	// Resumed is true when an existing waiting/active session was found and
	// the caller should trigger a full message load instead of showing the
	// welcome message only.
	Resumed bool
}

type Controller struct {
	store  store.Store
	source string
	now    func() time.Time
}

func NewController(chatStore store.Store, source string, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	if source == "" {
		source = "widget"
	}
	return &Controller{
		store:  chatStore,
		source: source,
		now:    now,
	}
}

// Bootstrap finds or creates the customer by email, then finds the most
// recent open session or creates a fresh waiting one with a synthetic system
// welcome message. Safe to invoke twice in a row (double-open of the widget):
// the lookup-before-insert makes the duplicate call land on the same rows.
//
// The lookup-then-insert is not transactional, so two truly concurrent
// bootstraps for the same customer can double-create sessions. Known issue,
// left visible rather than papered over: the store exposes no unique
// constraint at this layer.
func (c *Controller) Bootstrap(ctx context.Context, info CustomerInfo) (BootstrapResult, error) {
	email := normalizeEmail(info.Email)
	if !isValidEmail(email) {
		return BootstrapResult{}, newError(ErrorCodeValidation, "a valid email is required", nil)
	}

	customer, err := c.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return BootstrapResult{}, newError(ErrorCodeTransient, "connection failed", err)
		}
		customer, err = c.store.CreateCustomer(ctx, store.CustomerInfo{
			Name:  strings.TrimSpace(info.Name),
			Email: email,
			Phone: strings.TrimSpace(info.Phone),
		})
		if err != nil {
			return BootstrapResult{}, newError(ErrorCodeTransient, "connection failed", err)
		}
	}

	existing, err := c.store.FindOpenSession(ctx, customer.CustomerID)
	if err == nil {
		return BootstrapResult{
			Customer: customer,
			Session:  existing,
			Resumed:  true,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return BootstrapResult{}, newError(ErrorCodeTransient, "connection failed", err)
	}

	created, err := c.store.CreateSession(ctx, customer.CustomerID, store.SessionMeta{Source: c.source})
	if err != nil {
		return BootstrapResult{}, newError(ErrorCodeTransient, "connection failed", err)
	}

	if _, err := c.store.InsertMessage(ctx, created.SessionID, model.SenderSystem, "", model.MessageTypeSystem, welcomeMessage); err != nil {
		// The session exists; a missing welcome message is cosmetic. Log and
		// keep going so a flaky store does not strand the customer.
		log.Printf("session: welcome message for %s failed: %v", created.SessionID, err)
	}

	return BootstrapResult{
		Customer: customer,
		Session:  created,
	}, nil
}

// Close marks the session closed. Terminal: the widget must disable input and
// reject further sends.
func (c *Controller) Close(ctx context.Context, session model.SessionItem) error {
	if session.SessionID == "" {
		return newError(ErrorCodeValidation, "sessionId is required", nil)
	}
	if session.Status == model.SessionStatusClosed {
		return nil
	}
	if err := c.store.UpdateSessionStatus(ctx, session.SessionID, model.SessionStatusClosed); err != nil {
		return newError(ErrorCodeTransient, "connection failed", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if local == "" || domain == "" {
		return false
	}
	return strings.Contains(domain, ".")
}
