package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/room"
	"github.com/dice-talk/dicetalk/go/internal/config"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	router := mux.NewRouter()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.CORSOriginList(),
		AllowedHeaders: []string{"*"},
	})

	registerServices(router, services)
	setupHealthCheck(router, services)

	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(router *mux.Router, services *Services) {
	// REST
	room.NewHandler(services.Rooms).RegisterRoutes(router)

	// Connect
	timelinePath, timelineHandler := room.NewTimelineServiceHandler(room.NewService(services.Rooms))
	router.PathPrefix(timelinePath).Handler(timelineHandler)

	// Websocket gateway
	services.Gateway.RegisterRoutes(router)

	router.Handle("/metrics", services.Metrics.Handler()).Methods(http.MethodGet)
}

func setupHealthCheck(router *mux.Router, services *Services) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	}).Methods(http.MethodGet)

	if services.Health != nil {
		router.Handle("/health/outbox", services.Health).Methods(http.MethodGet)
	}
}
