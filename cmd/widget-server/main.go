package main

import (
	"log"
	"time"

	"chat-sync-engine/internal/api"
	"chat-sync-engine/internal/api/router"
	"chat-sync-engine/internal/database"
	"chat-sync-engine/internal/env"
	"chat-sync-engine/internal/queue"
	"chat-sync-engine/internal/store"
	"chat-sync-engine/internal/websocket"
)

func main() {
	env.MustValidate()

	queueManager := queue.NewRequestQueueManager(10, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	link := store.NewRedisLink(env.Get(env.ChatRedisURL), env.Get(env.ChatRedisPass))
	chatStore := store.NewRemoteStore(db, link, time.Now)

	hub := websocket.NewHub()
	go hub.Run()
	handler := websocket.NewHandler(hub, link)

	server := api.NewAPIServer(
		":82",
		queueManager,
		chatStore,
		handler,
		router.UtilsRoutes("/api/v1"),
		router.ChatRoutes("/api/v1"),
		router.ChatSocketRoutes("/api/v1"),
	)

	server.Run()
}
