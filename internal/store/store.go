package store

import (
	"context"
	"errors"

	"chat-sync-engine/internal/model"
)

var ErrNotFound = errors.New("chat store: not found")

type Topic string

const (
	TopicMessages Topic = "messages"
	TopicSession  Topic = "session"
)

type SortOrder string

const (
	OrderAscending  SortOrder = "asc"
	OrderDescending SortOrder = "desc"
)

// ListOptions narrows a message listing. Before is exclusive: only messages
// created strictly earlier are returned. Zero Before means "from the end".
type ListOptions struct {
	Before string
	Limit  int
	Order  SortOrder
}

type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

type SessionMeta struct {
	Source  string
	Subject string
}

// Subscription is one logical change feed. Close must be idempotent.
type Subscription interface {
	Close() error
}

// Event is a raw change notification before the typed decode boundary.
// Payload is the wire bytes; consumers decode with DecodeMessageEvent or
// DecodeSessionEvent rather than trusting the emitter.
type Event struct {
	Topic   Topic
	Payload []byte
}

type Health struct {
	Alive bool
}

// Store is the remote message/session collaborator the sync engine drives.
// Implementations must treat message inserts as append-only and may deliver
// subscription events at-least-once and out of order.
type Store interface {
	CreateCustomer(ctx context.Context, info CustomerInfo) (model.CustomerItem, error)
	FindCustomerByEmail(ctx context.Context, email string) (model.CustomerItem, error)

	CreateSession(ctx context.Context, customerID string, meta SessionMeta) (model.SessionItem, error)
	FindOpenSession(ctx context.Context, customerID string) (model.SessionItem, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error

	InsertMessage(ctx context.Context, sessionID string, sender model.SenderType, senderID string, messageType model.MessageType, content string) (model.MessageItem, error)
	ListMessages(ctx context.Context, sessionID string, opts ListOptions) ([]model.MessageItem, error)

	Subscribe(ctx context.Context, topic Topic, filter string, onEvent func(Event)) (Subscription, error)
	ProbeHealth(ctx context.Context) (Health, error)
	ForceReconnect(ctx context.Context) error
}
