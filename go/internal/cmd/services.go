package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/countdown"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/gateway"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/outbox"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/room"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/config"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

type Services struct {
	Rooms     *room.App
	Scheduler *countdown.Scheduler
	Gateway   *gateway.Service
	Metrics   *metrics.Metrics

	// Bus is nil without NATS; Relay is nil unless the outbox is relayed in-process.
	Bus    *outbox.JetStreamPublisher
	Relay  *outbox.Listener
	Health *outbox.HealthChecker
}

// Close releases the bus connection. The relay closes itself when its context ends.
func (s *Services) Close() {
	if s.Bus != nil {
		if err := s.Bus.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close NATS connection")
		}
	}
}

func setupServices(ctx context.Context, cfg *config.Config, stores *Stores, tl *timeline.Timeline, m *metrics.Metrics) (*Services, error) {
	// Wire up dependency injection chain
	// Storage → Outbox → Room app → Scheduler, with the gateway on the receiving end
	clock := clockwork.NewRealClock()
	services := &Services{Metrics: m}

	gwCfg := gateway.DefaultConfig()
	gwCfg.JWTSecret = cfg.JWTSecret
	services.Gateway = gateway.NewService(gwCfg, m)

	// Where domain events go once they leave the outbox
	var publisher outbox.Publisher = outbox.NewLocalPublisher(services.Gateway)
	if cfg.NATSEnabled() {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		bus, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		services.Bus = bus
		if err := services.Gateway.AttachConsumer(ctx, bus.Conn(), gwCfg.JetStreamConfig); err != nil {
			services.Close()
			return nil, err
		}
		publisher = bus
	}
	publisher = outbox.NewMetricPublisher(publisher, m)

	var writer outbox.EventWriter = outbox.NewDirectWriter(publisher)
	if stores.OutboxRepo != nil {
		writer = stores.OutboxRepo
	}
	outboxApp := outbox.NewApp(writer, clock, "api")

	if cfg.RunEmbeddedRelay() {
		relayCfg := outbox.DefaultListenerConfig()
		relayCfg.DatabaseURL = stores.DSN
		relay, err := outbox.NewListener(stores.OutboxRepo, publisher, relayCfg, m)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create outbox relay: %w", err)
		}
		services.Relay = relay

		var bus outbox.BusConn
		if services.Bus != nil {
			bus = services.Bus.Conn()
		}
		services.Health = outbox.NewHealthChecker(relay, stores.OutboxRepo, bus, 2*relayCfg.FallbackInterval)
	}

	services.Rooms = room.NewApp(stores.Rooms, tl, clock, outboxApp, m)
	services.Scheduler = countdown.NewScheduler(tl, clock, cfg.TickInterval, services.Gateway, outboxApp, services.Rooms, m)
	services.Rooms.AttachTracker(services.Scheduler)

	log.Info().
		Str("store", cfg.StoreDriver).
		Bool("nats", cfg.NATSEnabled()).
		Bool("embedded_relay", services.Relay != nil).
		Msg("services wired")
	return services, nil
}
