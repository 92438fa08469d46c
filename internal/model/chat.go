package model

import "time"

type SessionStatus string

const (
	SessionStatusWaiting     SessionStatus = "waiting"
	SessionStatusActive      SessionStatus = "active"
	SessionStatusTransferred SessionStatus = "transferred"
	SessionStatusClosed      SessionStatus = "closed"
)

// IsOpen reports whether a session in this status still accepts messages.
// transferred is non-terminal and is routed back into waiting/active handling.
func (s SessionStatus) IsOpen() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusTransferred:
		return true
	}
	return false
}

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeImage      MessageType = "image"
	MessageTypeFile       MessageType = "file"
	MessageTypeSystem     MessageType = "system"
	MessageTypeQuickReply MessageType = "quick_reply"
)

type CustomerItem struct {
	CustomerID string `dynamodbav:"customerId" json:"customerId"`
	Name       string `dynamodbav:"name" json:"name"`
	Email      string `dynamodbav:"email" json:"email"`
	Phone      string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt" json:"createdAt"`
}

type SessionItem struct {
	SessionID     string        `dynamodbav:"sessionId" json:"sessionId"`
	CustomerID    string        `dynamodbav:"customerId" json:"customerId"`
	AgentID       string        `dynamodbav:"agentId,omitempty" json:"agentId,omitempty"`
	Status        SessionStatus `dynamodbav:"status" json:"status"`
	Source        string        `dynamodbav:"source,omitempty" json:"source,omitempty"`
	Subject       string        `dynamodbav:"subject,omitempty" json:"subject,omitempty"`
	CreatedAt     string        `dynamodbav:"createdAt" json:"createdAt"`
	AssignedAt    string        `dynamodbav:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	ClosedAt      string        `dynamodbav:"closedAt,omitempty" json:"closedAt,omitempty"`
	LastMessageAt string        `dynamodbav:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
}

// TimestampLayout is the fixed-width stamp for message createdAt values.
// RFC3339Nano drops a zero fraction, which would make whole-second stamps
// sort after sub-second ones in the createdAt range key; padding the
// fraction keeps the string order chronological.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t in UTC with the fixed-width layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type MessageItem struct {
	PK          string      `dynamodbav:"pk" json:"-"`
	MessageID   string      `dynamodbav:"messageId" json:"messageId"`
	SessionID   string      `dynamodbav:"sessionId" json:"sessionId"`
	SenderType  SenderType  `dynamodbav:"senderType" json:"senderType"`
	SenderID    string      `dynamodbav:"senderId,omitempty" json:"senderId,omitempty"`
	MessageType MessageType `dynamodbav:"messageType" json:"messageType"`
	Content     string      `dynamodbav:"content" json:"content"`
	CreatedAt   string      `dynamodbav:"createdAt" json:"createdAt"`
}

// CreatedTime parses the server-assigned timestamp. Messages with an
// unparseable timestamp sort before everything else rather than crashing.
func (m MessageItem) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		t, err = time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// Less orders messages by (createdAt, messageId); the id tie-break keeps the
// sort stable when the store assigns identical timestamps.
func (m MessageItem) Less(other MessageItem) bool {
	ti, tj := m.CreatedTime(), other.CreatedTime()
	if ti.Equal(tj) {
		return m.MessageID < other.MessageID
	}
	return ti.Before(tj)
}

type LinkStatus string

const (
	LinkConnecting LinkStatus = "connecting"
	LinkSubscribed LinkStatus = "subscribed"
	LinkDegraded   LinkStatus = "degraded"
	LinkClosed     LinkStatus = "closed"
)

// ConnectionHealth is derived state, never persisted.
type ConnectionHealth struct {
	Status            LinkStatus `json:"status"`
	LastEventAt       time.Time  `json:"lastEventAt"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
}
