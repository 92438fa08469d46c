package api

import (
	"fmt"
	"net/http"
	"strings"

	"chat-sync-engine/internal/env"
	"chat-sync-engine/internal/queue"
	"chat-sync-engine/internal/store"
	"chat-sync-engine/internal/token"
	"chat-sync-engine/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	chatStore           store.Store
	routeRegistrars     []RouteRegistrar
	handler             *websocket.Handler
	widgetSigner        *token.WidgetSigner
	agentSecret         []byte
	allowedOrigins      []string
	metrics             *metrics
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, chatStore store.Store, handler *websocket.Handler, registrars ...RouteRegistrar) *APIServer {
	origins := strings.Split(env.GetOrDefault(env.WebUrl, "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		chatStore:           chatStore,
		handler:             handler,
		routeRegistrars:     registrars,
		widgetSigner:        token.NewWidgetSigner([]byte(env.GetOrDefault(env.WidgetSecretKey, "dev-widget-secret"))),
		agentSecret:         []byte(env.GetOrDefault(env.AgentSecretKey, "dev-agent-secret")),
		allowedOrigins:      origins,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
	}
}

func (s *APIServer) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	fmt.Printf("Server listening on http://localhost%s\n", s.listenAddr)

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		fmt.Printf("server stopped: %v\n", err)
	}
}

func (s *APIServer) Store() store.Store {
	return s.chatStore
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func (s *APIServer) WidgetSigner() *token.WidgetSigner {
	return s.widgetSigner
}

func (s *APIServer) AgentSecret() []byte {
	return s.agentSecret
}
