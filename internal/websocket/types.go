package websocket

import "encoding/json"

// SessionRoom groups every open widget shell and console pane watching
// one chat session.
type SessionRoom struct {
	SessionID string               `json:"sessionId"`
	Clients   map[string]*WSClient `json:"clients"`
}

// Frame is the wire format pushed to connected UI shells. Payload
// carries the store event envelope untouched so the shell-side decoder
// sees exactly what the feed published.
type Frame struct {
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"`
}

type RoomRes struct {
	SessionID string `json:"sessionId"`
}
