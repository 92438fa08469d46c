package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestClient(id, sessionID string) *WSClient {
	return &WSClient{
		Frames:    make(chan *Frame, 10),
		ID:        id,
		SessionID: sessionID,
		done:      make(chan struct{}),
	}
}

func TestHubBroadcastsToRoomClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.CreateRoom("sess-1")
	hub.CreateRoom("sess-2")

	inRoom := newTestClient("a", "sess-1")
	otherRoom := newTestClient("b", "sess-2")
	hub.Register <- inRoom
	hub.Register <- otherRoom

	hub.Broadcast <- &Frame{
		Kind:      "messages",
		Payload:   json.RawMessage(`{"kind":"message.created"}`),
		SessionID: "sess-1",
	}

	select {
	case frame := <-inRoom.Frames:
		if frame.SessionID != "sess-1" {
			t.Fatalf("frame delivered with wrong session: %s", frame.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatalf("client in room never received the frame")
	}

	select {
	case frame := <-otherRoom.Frames:
		t.Fatalf("client in other room received frame: %+v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesFrameChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.CreateRoom("sess-1")

	client := newTestClient("a", "sess-1")
	hub.Register <- client
	hub.Unregister <- client

	select {
	case _, ok := <-client.Frames:
		if ok {
			t.Fatalf("expected frame channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame channel never closed")
	}
}

func TestHubDropsUnknownRoomFrames(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Must not panic or block.
	hub.Broadcast <- &Frame{Kind: "messages", SessionID: "missing"}
	hub.Broadcast <- &Frame{Kind: "messages", SessionID: "missing"}
}

func TestHubRemoveRoomDisconnectsClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	if !hub.CreateRoom("sess-1") {
		t.Fatalf("expected room creation to succeed")
	}
	if hub.CreateRoom("sess-1") {
		t.Fatalf("duplicate room creation must report existing")
	}

	client := newTestClient("a", "sess-1")
	hub.Register <- client

	// A broadcast round-trip guarantees the registration has been
	// processed before the room is removed.
	hub.Broadcast <- &Frame{Kind: "messages", SessionID: "sess-1"}
	select {
	case <-client.Frames:
	case <-time.After(time.Second):
		t.Fatalf("client never registered")
	}

	hub.RemoveRoom("sess-1")

	select {
	case _, ok := <-client.Frames:
		if ok {
			t.Fatalf("expected frame channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame channel never closed")
	}
	if ids := hub.RoomIDs(); len(ids) != 0 {
		t.Fatalf("expected no rooms after removal, got %v", ids)
	}

	// Removing an already removed room is a no-op.
	hub.RemoveRoom("sess-1")
}

func TestHubRoomChurnDuringBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Room creation and teardown race against the broadcast loop; the
	// race detector flags unguarded map access here.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("sess-%d-%d", n, j)
				hub.CreateRoom(id)
				hub.Broadcast <- &Frame{Kind: "messages", SessionID: id}
				hub.RemoveRoom(id)
			}
		}(i)
	}
	wg.Wait()
}
