package router

import (
	"net/http"

	"chat-sync-engine/internal/api"
	"chat-sync-engine/internal/api/endpoints"
	"chat-sync-engine/internal/api/middleware"
)

func ConsoleRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		directory, _ := s.Store().(endpoints.SessionDirectory)

		var rooms endpoints.RoomManager
		if handler := s.Handler(); handler != nil {
			rooms = handler
		}

		consoleEndpoints := endpoints.NewConsoleEndpoints(s.Store(), directory, rooms)
		agentAuth := middleware.ValidateAgentJWT(s.AgentSecret())

		mux.HandleFunc(prefix+"/console/sessions", s.MakeHTTPHandleFunc(consoleEndpoints.Sessions, agentAuth))
		mux.HandleFunc(prefix+"/console/sessions/claim", s.MakeHTTPHandleFunc(consoleEndpoints.Claim, agentAuth))
		mux.HandleFunc(prefix+"/console/sessions/close", s.MakeHTTPHandleFunc(consoleEndpoints.CloseSession, agentAuth))
		mux.HandleFunc(prefix+"/console/messages", s.MakeHTTPHandleFunc(consoleEndpoints.Message, agentAuth))
	}
}
