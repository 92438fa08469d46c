package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"chat-sync-engine/internal/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler bridges the store change feeds into websocket session rooms.
// Each room holds the two feed subscriptions for its session; frames
// flow feed -> hub broadcast -> attached clients.
type Handler struct {
	hub  *Hub
	link *store.RedisLink

	mu   sync.Mutex
	subs map[string][]store.Subscription
}

func NewHandler(h *Hub, link *store.RedisLink) *Handler {
	return &Handler{
		hub:  h,
		link: link,
		subs: make(map[string][]store.Subscription),
	}
}

// EnsureRoom creates the session room and wires its feed subscriptions.
// Safe to call repeatedly; only the first call per session subscribes.
func (h *Handler) EnsureRoom(sessionID, customerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.hub.CreateRoom(sessionID) {
		return
	}

	forward := func(ev store.Event) {
		h.hub.Broadcast <- &Frame{
			Kind:      string(ev.Topic),
			Payload:   json.RawMessage(ev.Payload),
			SessionID: sessionID,
			Timestamp: time.Now().Unix(),
		}
	}

	msgSub, err := h.link.Subscribe(context.Background(), store.TopicMessages, sessionID, forward)
	if err != nil {
		log.Printf("Message feed subscribe failed for session %s: %v", sessionID, err)
		return
	}
	h.subs[sessionID] = append(h.subs[sessionID], msgSub)

	if customerID != "" {
		sessSub, err := h.link.Subscribe(context.Background(), store.TopicSession, customerID, forward)
		if err != nil {
			log.Printf("Session feed subscribe failed for session %s: %v", sessionID, err)
			return
		}
		h.subs[sessionID] = append(h.subs[sessionID], sessSub)
	}
}

// CloseRoom tears down the feed subscriptions for an ended session and
// drops the room, disconnecting any clients still attached.
func (h *Handler) CloseRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[sessionID] {
		if err := sub.Close(); err != nil {
			log.Printf("Feed close failed for session %s: %v", sessionID, err)
		}
	}
	delete(h.subs, sessionID)
	h.hub.RemoveRoom(sessionID)
}

// Attach upgrades the request and registers the client in its session
// room.
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request, sessionID, clientID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:      conn,
		Frames:    make(chan *Frame, 10),
		ID:        clientID,
		SessionID: sessionID,
		done:      make(chan struct{}),
	}

	h.hub.Register <- cl

	go cl.keepAlive()
	go cl.writeFrames()
	go cl.readLoop(h.hub)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := make([]RoomRes, 0)

	for _, id := range h.hub.RoomIDs() {
		rooms = append(rooms, RoomRes{
			SessionID: id,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}
