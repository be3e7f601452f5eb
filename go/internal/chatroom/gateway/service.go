package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

// Service is the realtime gateway: websocket connections plus the bus consumer
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	JWTSecret        string
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates the gateway without a bus consumer. Events reach it
// in-process through HandleEnvelope until AttachConsumer is called.
func NewService(config Config, m *metrics.Metrics) *Service {
	cm := NewConnectionManager(config.ConnectionConfig, m)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, NewTokenVerifier(config.JWTSecret)),
	}
}

// AttachConsumer subscribes the gateway to the room event stream on nc
func (s *Service) AttachConsumer(ctx context.Context, nc *nats.Conn, config JetStreamConsumerConfig) error {
	consumer, err := NewEventConsumer(ctx, nc, s.connectionManager, config)
	if err != nil {
		return fmt.Errorf("failed to create event consumer: %w", err)
	}
	s.eventConsumer = consumer
	return nil
}

// Start runs the gateway until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("bus_consumer", s.eventConsumer != nil).Msg("starting room gateway")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("room gateway stopped")
	return nil
}

func (s *Service) RegisterRoutes(r *mux.Router) {
	s.wsHandler.RegisterRoutes(r)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}

// BroadcastTimerTick forwards scheduler ticks to connected members
func (s *Service) BroadcastTimerTick(roomID uuid.UUID, tick events.TimerTickPayload) {
	s.connectionManager.BroadcastTimerTick(roomID, tick)
}

// HandleEnvelope forwards domain events delivered without the bus
func (s *Service) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	return s.connectionManager.HandleEnvelope(ctx, env)
}
