package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"chat-sync-engine/internal/api/middleware"
	"chat-sync-engine/internal/dto"
	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/store"
)

// SessionDirectory lists sessions for the agent queue. Implemented by
// the remote store; fakes implement it directly in tests.
type SessionDirectory interface {
	ListSessions(ctx context.Context, statuses []model.SessionStatus) ([]model.SessionItem, error)
}

type ConsoleEndpoints interface {
	Sessions(http.ResponseWriter, *http.Request) error
	Claim(http.ResponseWriter, *http.Request) error
	CloseSession(http.ResponseWriter, *http.Request) error
	Message(http.ResponseWriter, *http.Request) error
}

type consoleEndpoints struct {
	chatStore store.Store
	directory SessionDirectory
	rooms     RoomManager
}

func NewConsoleEndpoints(chatStore store.Store, directory SessionDirectory, rooms RoomManager) ConsoleEndpoints {
	return &consoleEndpoints{
		chatStore: chatStore,
		directory: directory,
		rooms:     rooms,
	}
}

func (h *consoleEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListSessions,
	})
}

func (h *consoleEndpoints) Claim(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleClaim,
	})
}

func (h *consoleEndpoints) CloseSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCloseSession,
	})
}

func (h *consoleEndpoints) Message(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleMessage,
	})
}

func (h *consoleEndpoints) handleListSessions(w http.ResponseWriter, r *http.Request) error {
	var statuses []model.SessionStatus
	switch r.URL.Query().Get("status") {
	case "":
		statuses = []model.SessionStatus{model.SessionStatusWaiting, model.SessionStatusActive}
	case "waiting":
		statuses = []model.SessionStatus{model.SessionStatusWaiting}
	case "active":
		statuses = []model.SessionStatus{model.SessionStatusActive}
	case "closed":
		statuses = []model.SessionStatus{model.SessionStatusClosed}
	default:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Unknown status filter",
		}
	}

	if h.directory == nil {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Session listing unavailable",
		}
	}

	sessions, err := h.directory.ListSessions(r.Context(), statuses)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   fmt.Errorf("list sessions: %w", err),
		}
	}

	return WriteJSON(w, http.StatusOK, dto.SessionsResponse{Sessions: sessions})
}

func (h *consoleEndpoints) handleClaim(w http.ResponseWriter, r *http.Request) error {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
		}
	}

	var req dto.ClaimSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
		}
	}

	if err := h.chatStore.UpdateSessionStatus(r.Context(), req.SessionID, model.SessionStatusActive); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   fmt.Errorf("claim session %s: %w", req.SessionID, err),
		}
	}

	// Visible in the transcript so the customer knows who joined.
	if _, err := h.chatStore.InsertMessage(r.Context(), req.SessionID, model.SenderSystem, "", model.MessageTypeSystem, "An agent has joined the conversation."); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   fmt.Errorf("claim notice for %s by %s: %w", req.SessionID, agent.ID, err),
		}
	}

	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Session claimed"})
}

func (h *consoleEndpoints) handleCloseSession(w http.ResponseWriter, r *http.Request) error {
	var req dto.CloseSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
		}
	}

	if err := h.chatStore.UpdateSessionStatus(r.Context(), req.SessionID, model.SessionStatusClosed); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   fmt.Errorf("close session %s: %w", req.SessionID, err),
		}
	}

	if h.rooms != nil {
		h.rooms.CloseRoom(req.SessionID)
	}

	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Session closed"})
}

func (h *consoleEndpoints) handleMessage(w http.ResponseWriter, r *http.Request) error {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
		}
	}

	var req dto.ConsoleMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
		}
	}
	if req.Content == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Message content is required",
		}
	}

	message, err := h.chatStore.InsertMessage(r.Context(), req.SessionID, model.SenderAgent, agent.ID, model.MessageTypeText, req.Content)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   fmt.Errorf("agent message for %s: %w", req.SessionID, err),
		}
	}

	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: message})
}
