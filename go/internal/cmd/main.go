package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/config"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	tlCfg, err := timeline.LoadConfig(cfg.TimelineProfile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load timeline profile")
	}
	tl := timeline.MustNew(tlCfg, timeline.WithLocation(cfg.Location()))
	log.Info().
		Dur("lifetime", tlCfg.RoomLifetime()).
		Str("zone", cfg.TimestampZone).
		Msg("timeline loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := setupStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up storage")
	}
	defer stores.Close()

	services, err := setupServices(ctx, cfg, stores, tl, metrics.New())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	// Pick up rooms that were open before a restart
	tracked, err := services.Rooms.Resume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resume open rooms")
	}
	log.Info().Int("rooms", tracked).Msg("resumed open rooms")

	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway failed")
		}
	}()
	go func() {
		if err := services.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("countdown scheduler failed")
		}
	}()
	if services.Relay != nil {
		go func() {
			if err := services.Relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay failed")
			}
		}()
	}

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
