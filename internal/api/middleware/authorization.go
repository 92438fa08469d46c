package middleware

import (
	"context"
	"net/http"
	"strings"

	"chat-sync-engine/internal/token"
)

type contextKey string

const agentContextKey contextKey = "agent"

// ValidateAgentJWT guards console routes. The verified agent identity
// is stored on the request context for the endpoint layer.
func ValidateAgentJWT(secret []byte) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			agent, err := token.ParseAgentToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), agentContextKey, agent)))
		}
	}
}

// AgentFromContext returns the agent identity set by ValidateAgentJWT.
func AgentFromContext(ctx context.Context) (token.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey).(token.Agent)
	return agent, ok
}
