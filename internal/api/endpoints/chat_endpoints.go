package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"chat-sync-engine/internal/dto"
	"chat-sync-engine/internal/model"
	"chat-sync-engine/internal/session"
	"chat-sync-engine/internal/store"
	"chat-sync-engine/internal/token"
)

// RoomManager is the slice of the websocket handler the chat endpoints
// need. Nil is allowed; rooms are then not managed from this layer.
type RoomManager interface {
	EnsureRoom(sessionID, customerID string)
	CloseRoom(sessionID string)
}

type ChatEndpoints interface {
	Bootstrap(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	Close(http.ResponseWriter, *http.Request) error
}

type chatEndpoints struct {
	controller   *session.Controller
	chatStore    store.Store
	signer       *token.WidgetSigner
	rooms        RoomManager
	pageSize     int
	initialLimit int
}

func NewChatEndpoints(controller *session.Controller, chatStore store.Store, signer *token.WidgetSigner, rooms RoomManager, pageSize, initialLimit int) ChatEndpoints {
	if pageSize <= 0 {
		pageSize = 20
	}
	if initialLimit <= 0 {
		initialLimit = 30
	}
	return &chatEndpoints{
		controller:   controller,
		chatStore:    chatStore,
		signer:       signer,
		rooms:        rooms,
		pageSize:     pageSize,
		initialLimit: initialLimit,
	}
}

func (h *chatEndpoints) Bootstrap(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleBootstrap,
	})
}

func (h *chatEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleSendMessage,
		http.MethodGet:  h.handleListMessages,
	})
}

func (h *chatEndpoints) Close(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleClose,
	})
}

func (h *chatEndpoints) handleBootstrap(w http.ResponseWriter, r *http.Request) error {
	var req dto.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode bootstrap request: %w", err),
		}
	}

	result, err := h.controller.Bootstrap(r.Context(), session.CustomerInfo{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		return mapChatError(err)
	}

	widgetToken, err := h.signer.Sign(result.Customer.CustomerID, result.Session.SessionID)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("sign widget token: %w", err),
		}
	}

	messages, err := h.chatStore.ListMessages(r.Context(), result.Session.SessionID, store.ListOptions{
		Limit: h.initialLimit,
		Order: store.OrderDescending,
	})
	if err != nil {
		return mapChatError(err)
	}
	reverseMessages(messages)

	if h.rooms != nil {
		h.rooms.EnsureRoom(result.Session.SessionID, result.Customer.CustomerID)
	}

	return WriteJSON(w, http.StatusOK, dto.BootstrapResponse{
		Customer:    result.Customer,
		Session:     result.Session,
		Resumed:     result.Resumed,
		WidgetToken: widgetToken,
		Messages:    messages,
	})
}

func (h *chatEndpoints) handleSendMessage(w http.ResponseWriter, r *http.Request) error {
	claims, err := h.verifyToken(r)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode send request: %w", err),
		}
	}
	if req.Content == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Message content is required",
		}
	}

	open, err := h.openSession(r, claims)
	if err != nil {
		return err
	}

	message, err := h.chatStore.InsertMessage(r.Context(), open.SessionID, model.SenderCustomer, claims.CustomerID, model.MessageTypeText, req.Content)
	if err != nil {
		return mapChatError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: message})
}

func (h *chatEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	claims, err := h.verifyToken(r)
	if err != nil {
		return err
	}

	limit := h.pageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid limit",
			}
		}
		limit = parsed
	}

	messages, err := h.chatStore.ListMessages(r.Context(), claims.SessionID, store.ListOptions{
		Before: r.URL.Query().Get("before"),
		Limit:  limit,
		Order:  store.OrderDescending,
	})
	if err != nil {
		return mapChatError(err)
	}
	reverseMessages(messages)

	return WriteJSON(w, http.StatusOK, dto.MessagesPageResponse{
		Messages: messages,
		HasMore:  len(messages) == limit,
	})
}

func (h *chatEndpoints) handleClose(w http.ResponseWriter, r *http.Request) error {
	claims, err := h.verifyToken(r)
	if err != nil {
		return err
	}

	open, err := h.openSession(r, claims)
	if err != nil {
		return err
	}

	if err := h.controller.Close(r.Context(), open); err != nil {
		return mapChatError(err)
	}

	if h.rooms != nil {
		h.rooms.CloseRoom(open.SessionID)
	}

	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Conversation closed"})
}

func (h *chatEndpoints) verifyToken(r *http.Request) (token.WidgetClaims, error) {
	claims, err := h.signer.Verify(ExtractWidgetToken(r))
	if err != nil {
		return token.WidgetClaims{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("verify widget token: %w", err),
		}
	}
	return claims, nil
}

// openSession resolves the caller's current open session and checks the
// token is still bound to it. A token for a closed or superseded session
// gets a conflict, not a silent write into the wrong conversation.
func (h *chatEndpoints) openSession(r *http.Request, claims token.WidgetClaims) (model.SessionItem, error) {
	open, err := h.chatStore.FindOpenSession(r.Context(), claims.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.SessionItem{}, &HTTPError{
				StatusCode: http.StatusConflict,
				Message:    "Conversation closed",
			}
		}
		return model.SessionItem{}, mapChatError(err)
	}
	if open.SessionID != claims.SessionID {
		return model.SessionItem{}, &HTTPError{
			StatusCode: http.StatusConflict,
			Message:    "Conversation closed",
		}
	}
	return open, nil
}

func reverseMessages(messages []model.MessageItem) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func mapChatError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *session.Error
	if !errors.As(err, &svcErr) {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("chat session: %w", err),
		}
	}

	var errorLog error
	if svcErr.Err != nil {
		errorLog = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		errorLog = svcErr
	}

	switch svcErr.Code {
	case session.ErrorCodeValidation:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	case session.ErrorCodeNotFound:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	case session.ErrorCodeStale, session.ErrorCodeDuplicate:
		return &HTTPError{
			StatusCode: http.StatusConflict,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	default:
		return &HTTPError{
			StatusCode: http.StatusBadGateway,
			Message:    "Upstream connection failed",
			ErrorLog:   errorLog,
		}
	}
}
