package router

import (
	"net/http"

	"chat-sync-engine/internal/api"
	"chat-sync-engine/internal/api/endpoints"
	"chat-sync-engine/internal/env"
	"chat-sync-engine/internal/session"
)

func ChatRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		controller := session.NewController(s.Store(), "widget", nil)

		var rooms endpoints.RoomManager
		if handler := s.Handler(); handler != nil {
			rooms = handler
		}

		chatEndpoints := endpoints.NewChatEndpoints(
			controller,
			s.Store(),
			s.WidgetSigner(),
			rooms,
			env.GetIntOrDefault(env.HistoryPageSize, 20),
			env.GetIntOrDefault(env.InitialLoadLimit, 30),
		)

		mux.HandleFunc(prefix+"/chat/bootstrap", s.MakeHTTPHandleFunc(chatEndpoints.Bootstrap))
		mux.HandleFunc(prefix+"/chat/messages", s.MakeHTTPHandleFunc(chatEndpoints.Messages))
		mux.HandleFunc(prefix+"/chat/close", s.MakeHTTPHandleFunc(chatEndpoints.Close))
	}
}

// ChatSocketRoutes attaches widget shells to their session room. The
// upgrade bypasses the request queue; a websocket held open would pin a
// worker for the life of the connection.
func ChatSocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		mux.HandleFunc(prefix+"/chat/ws", func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.WidgetSigner().Verify(r.URL.Query().Get("token"))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			handler := s.Handler()
			if handler == nil {
				http.Error(w, "Websockets unavailable", http.StatusServiceUnavailable)
				return
			}

			handler.EnsureRoom(claims.SessionID, claims.CustomerID)
			handler.Attach(w, r, claims.SessionID, claims.CustomerID)
		})
	}
}
