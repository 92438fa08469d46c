package store

import (
	"encoding/json"
	"fmt"

	"chat-sync-engine/internal/model"
)

// Wire envelopes published on the change channels. Every publisher in the
// system (gateways, agent console) goes through PublishMessageEvent /
// PublishSessionEvent so the envelope shape stays in one place.

type messageEnvelope struct {
	Kind    string            `json:"kind"`
	Message model.MessageItem `json:"message"`
}

type sessionEnvelope struct {
	Kind    string            `json:"kind"`
	Session model.SessionItem `json:"session"`
}

const (
	kindMessageCreated = "message.created"
	kindSessionUpdated = "session.updated"
)

func EncodeMessageEvent(message model.MessageItem) ([]byte, error) {
	return json.Marshal(messageEnvelope{Kind: kindMessageCreated, Message: message})
}

func EncodeSessionEvent(session model.SessionItem) ([]byte, error) {
	return json.Marshal(sessionEnvelope{Kind: kindSessionUpdated, Session: session})
}

// DecodeMessageEvent is the typed boundary for incoming message events.
// Malformed payloads are rejected here so nothing downstream handles a
// half-populated message.
func DecodeMessageEvent(payload []byte) (model.MessageItem, error) {
	var env messageEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return model.MessageItem{}, fmt.Errorf("decode message event: %w", err)
	}
	if env.Kind != kindMessageCreated {
		return model.MessageItem{}, fmt.Errorf("decode message event: unexpected kind %q", env.Kind)
	}
	m := env.Message
	if m.MessageID == "" || m.SessionID == "" || m.CreatedAt == "" {
		return model.MessageItem{}, fmt.Errorf("decode message event: missing identifiers")
	}
	if m.CreatedTime().IsZero() {
		return model.MessageItem{}, fmt.Errorf("decode message event: bad createdAt %q", m.CreatedAt)
	}
	switch m.SenderType {
	case model.SenderCustomer, model.SenderAgent, model.SenderSystem:
	default:
		return model.MessageItem{}, fmt.Errorf("decode message event: unknown sender type %q", m.SenderType)
	}
	return m, nil
}

func DecodeSessionEvent(payload []byte) (model.SessionItem, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return model.SessionItem{}, fmt.Errorf("decode session event: %w", err)
	}
	if env.Kind != kindSessionUpdated {
		return model.SessionItem{}, fmt.Errorf("decode session event: unexpected kind %q", env.Kind)
	}
	s := env.Session
	if s.SessionID == "" || s.CustomerID == "" {
		return model.SessionItem{}, fmt.Errorf("decode session event: missing identifiers")
	}
	switch s.Status {
	case model.SessionStatusWaiting, model.SessionStatusActive, model.SessionStatusTransferred, model.SessionStatusClosed:
	default:
		return model.SessionItem{}, fmt.Errorf("decode session event: unknown status %q", s.Status)
	}
	return s, nil
}

// MessageChannel and SessionChannel name the pub/sub channels used by the
// redis-backed store and by the websocket bridge.
func MessageChannel(sessionID string) string {
	return "chat:messages:" + sessionID
}

func SessionChannel(customerID string) string {
	return "chat:session:" + customerID
}
