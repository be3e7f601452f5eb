package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/outbox"
	"github.com/dice-talk/dicetalk/go/internal/dbconfig"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

type relayConfig struct {
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"debug"`
	NATSURL          string        `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	FallbackInterval time.Duration `envconfig:"FALLBACK_INTERVAL" default:"30s"`
	HealthPort       int           `envconfig:"HEALTH_PORT" default:"8082"`
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var cfg relayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("load relay config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// DB config
	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load database config")
	}
	dsn := dbCfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := outbox.NewRepository(db, outbox.DefaultNotifyChannel)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate outbox table")
	}

	// JetStream publisher
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	jsPublisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := jsPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	m := metrics.New()
	publisher := outbox.NewMetricPublisher(jsPublisher, m)

	// Listener config
	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.FallbackInterval = cfg.FallbackInterval

	listener, err := outbox.NewListener(repo, publisher, ltCfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	// health and metrics
	mux := http.NewServeMux()
	mux.Handle("/healthz", outbox.NewHealthChecker(listener, repo, jsPublisher.Conn(), 2*ltCfg.FallbackInterval))
	mux.Handle("/metrics", m.Handler())
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: mux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// run listener
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting realtime listener")
		errCh <- listener.Start(ctx)
	}()

	// wait for shutdown or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener stopped with error")
		}
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
