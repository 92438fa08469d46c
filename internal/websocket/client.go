package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type WSClient struct {
	Conn      *websocket.Conn
	Frames    chan *Frame
	ID        string
	SessionID string
	done      chan struct{}
	mu        sync.Mutex
	isClosed  bool
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Ping error for client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

func (cl *WSClient) writeFrames() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case frame, ok := <-cl.Frames:
			if !ok {
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteJSON(frame)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Error sending frame to client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

// readLoop drains the connection. Widget sends go through the HTTP API
// so inbound frames are ignored; the loop exists to observe pongs and
// close frames.
func (cl *WSClient) readLoop(hub *Hub) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readLoop: %v", r)
		}

		if cl.done != nil {
			close(cl.done)
		}

		hub.Unregister <- cl
		log.Printf("Client %s detached from session %s", cl.ID, cl.SessionID)
	}()

	cl.Conn.SetReadLimit(512 * 1024)

	for {
		if _, _, err := cl.Conn.ReadMessage(); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			log.Printf("Error reading from client %s: %v", cl.ID, err)
			break
		}
	}
}
