package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-sync-engine/internal/api/middleware"
	"chat-sync-engine/internal/dto"
	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/store"
	"chat-sync-engine/internal/token"
)

const consoleTestSecret = "console-test-secret"

func setupConsoleHandler(t *testing.T, st *memoryStore, rooms RoomManager) http.Handler {
	t.Helper()

	server, cleanup := newTestServer(st)
	t.Cleanup(cleanup)

	consoleEndpoints := NewConsoleEndpoints(st, st, rooms)
	agentAuth := middleware.ValidateAgentJWT([]byte(consoleTestSecret))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/console/sessions", server.MakeHTTPHandleFunc(consoleEndpoints.Sessions, agentAuth))
	mux.HandleFunc("/api/console/sessions/claim", server.MakeHTTPHandleFunc(consoleEndpoints.Claim, agentAuth))
	mux.HandleFunc("/api/console/sessions/close", server.MakeHTTPHandleFunc(consoleEndpoints.CloseSession, agentAuth))
	mux.HandleFunc("/api/console/messages", server.MakeHTTPHandleFunc(consoleEndpoints.Message, agentAuth))

	return mux
}

func agentToken(t *testing.T) string {
	t.Helper()
	tok, err := token.CreateAgentToken(token.Agent{ID: "agent-1", Email: "agent@example.com"}, []byte(consoleTestSecret), 0)
	if err != nil {
		t.Fatalf("create agent token: %v", err)
	}
	return tok
}

func seedWaitingSession(t *testing.T, st *memoryStore) model.SessionItem {
	t.Helper()
	customer, err := st.CreateCustomer(context.Background(), store.CustomerInfo{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	session, err := st.CreateSession(context.Background(), customer.CustomerID, store.SessionMeta{Source: "widget"})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

func TestConsoleRequiresAgentToken(t *testing.T) {
	st := newMemoryStore()
	handler := setupConsoleHandler(t, st, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/console/sessions", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
}

func TestConsoleListsOpenSessions(t *testing.T) {
	st := newMemoryStore()
	handler := setupConsoleHandler(t, st, nil)
	session := seedWaitingSession(t, st)

	req := httptest.NewRequest(http.MethodGet, "/api/console/sessions?status=waiting", nil)
	req.Header.Set("Authorization", "Bearer "+agentToken(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", res.Code, res.Body.String())
	}

	var out dto.SessionsResponse
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode sessions response: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0].SessionID != session.SessionID {
		t.Fatalf("expected the seeded waiting session, got %+v", out.Sessions)
	}
}

func TestConsoleClaimActivatesSession(t *testing.T) {
	st := newMemoryStore()
	handler := setupConsoleHandler(t, st, nil)
	session := seedWaitingSession(t, st)

	body, _ := json.Marshal(dto.ClaimSessionRequest{SessionID: session.SessionID})
	req := httptest.NewRequest(http.MethodPost, "/api/console/sessions/claim", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+agentToken(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("claim returned %d: %s", res.Code, res.Body.String())
	}

	if st.sessions[session.SessionID].Status != model.SessionStatusActive {
		t.Fatalf("expected active session, got %s", st.sessions[session.SessionID].Status)
	}

	messages := st.messages[session.SessionID]
	if len(messages) != 1 || messages[0].SenderType != model.SenderSystem {
		t.Fatalf("expected a system join notice, got %+v", messages)
	}
}

func TestConsoleReplyCarriesAgentIdentity(t *testing.T) {
	st := newMemoryStore()
	handler := setupConsoleHandler(t, st, nil)
	session := seedWaitingSession(t, st)

	body, _ := json.Marshal(dto.ConsoleMessageRequest{SessionID: session.SessionID, Content: "How can I help?"})
	req := httptest.NewRequest(http.MethodPost, "/api/console/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+agentToken(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("reply returned %d: %s", res.Code, res.Body.String())
	}

	var created dto.MessageResponse
	if err := json.Unmarshal(res.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode reply response: %v", err)
	}
	if created.Message.SenderType != model.SenderAgent || created.Message.SenderID != "agent-1" {
		t.Fatalf("expected agent-1 sender, got %s/%s", created.Message.SenderType, created.Message.SenderID)
	}
}

func TestConsoleCloseTearsDownRoom(t *testing.T) {
	st := newMemoryStore()
	rooms := &fakeRooms{}
	handler := setupConsoleHandler(t, st, rooms)
	session := seedWaitingSession(t, st)

	body, _ := json.Marshal(dto.CloseSessionRequest{SessionID: session.SessionID})
	req := httptest.NewRequest(http.MethodPost, "/api/console/sessions/close", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+agentToken(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("close returned %d: %s", res.Code, res.Body.String())
	}
	if st.sessions[session.SessionID].Status != model.SessionStatusClosed {
		t.Fatalf("expected closed session, got %s", st.sessions[session.SessionID].Status)
	}
	if len(rooms.closed) != 1 || rooms.closed[0] != session.SessionID {
		t.Fatalf("expected room teardown for session, got %v", rooms.closed)
	}
}
