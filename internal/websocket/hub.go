package websocket

import "sync"

// Hub owns the session rooms. The rooms map and each room's client set
// are guarded by mu; both the Run loop and the handler's room lifecycle
// calls go through it.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*SessionRoom

	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *Frame
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*SessionRoom),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *Frame),
	}
}

// CreateRoom adds an empty room for the session. Returns false when the
// room already exists.
func (h *Hub) CreateRoom(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.rooms[sessionID]; exists {
		return false
	}
	h.rooms[sessionID] = &SessionRoom{
		SessionID: sessionID,
		Clients:   make(map[string]*WSClient),
	}
	setRooms(len(h.rooms))
	return true
}

// RemoveRoom drops the room and disconnects any clients still attached.
func (h *Hub) RemoveRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for _, client := range room.Clients {
		close(client.Frames)
		decConnections()
	}
	delete(h.rooms, sessionID)
	setRooms(len(h.rooms))
}

func (h *Hub) RoomIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			room, ok := h.rooms[client.SessionID]
			if !ok {
				// Room must be created by the handler before clients
				// attach; drop the registration otherwise.
				h.mu.Unlock()
				continue
			}
			room.Clients[client.ID] = client
			incConnections()
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			room, ok := h.rooms[client.SessionID]
			if !ok {
				h.mu.Unlock()
				continue
			}
			if _, ok := room.Clients[client.ID]; ok {
				delete(room.Clients, client.ID)
				close(client.Frames)
				decConnections()
			}
			h.mu.Unlock()

		case frame := <-h.Broadcast:
			h.mu.Lock()
			room, ok := h.rooms[frame.SessionID]
			if !ok {
				h.mu.Unlock()
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Frames <- frame:
					delivered++
				default:
					// Slow consumer; cut it loose rather than stall
					// the whole room.
					close(client.Frames)
					delete(room.Clients, client.ID)
					decConnections()
				}
			}
			h.mu.Unlock()
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}
