package dto

import "chat-sync-engine/internal/model"

type BootstrapRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type BootstrapResponse struct {
	Customer    model.CustomerItem  `json:"customer"`
	Session     model.SessionItem   `json:"session"`
	Resumed     bool                `json:"resumed"`
	WidgetToken string              `json:"widgetToken"`
	Messages    []model.MessageItem `json:"messages"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Message model.MessageItem `json:"message"`
}

type MessagesPageResponse struct {
	Messages []model.MessageItem `json:"messages"`
	HasMore  bool                `json:"hasMore"`
}

type SessionResponse struct {
	Session model.SessionItem `json:"session"`
}

type SessionsResponse struct {
	Sessions []model.SessionItem `json:"sessions"`
}

type ClaimSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type CloseSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type ConsoleMessageRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}
