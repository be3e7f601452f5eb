package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
)

// EventWriter defines what the app layer needs to record an event
type EventWriter interface {
	InsertEvent(ctx context.Context, event OutboxEvent) error
}

// App handles outbox business logic
type App struct {
	writer EventWriter
	clock  clockwork.Clock
	source string
}

// NewApp creates a new outbox App. source is recorded in every event's
// metadata to tell producers apart.
func NewApp(writer EventWriter, clock clockwork.Clock, source string) *App {
	return &App{
		writer: writer,
		clock:  clock,
		source: source,
	}
}

// InsertRoomCreated inserts a RoomCreated event into the outbox
func (a *App) InsertRoomCreated(ctx context.Context, roomID uuid.UUID, payload []byte) error {
	return a.insert(ctx, roomID, events.TypeRoomCreated, payload)
}

// InsertPhaseChanged inserts a PhaseChanged event into the outbox
func (a *App) InsertPhaseChanged(ctx context.Context, roomID uuid.UUID, payload []byte) error {
	return a.insert(ctx, roomID, events.TypePhaseChanged, payload)
}

// InsertRoomClosed inserts a RoomClosed event into the outbox
func (a *App) InsertRoomClosed(ctx context.Context, roomID uuid.UUID, payload []byte) error {
	return a.insert(ctx, roomID, events.TypeRoomClosed, payload)
}

type eventMetadata struct {
	Source string `json:"source"`
}

func (a *App) insert(ctx context.Context, roomID uuid.UUID, eventType string, payload []byte) error {
	if err := validateEventPayload(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	metadata, err := json.Marshal(eventMetadata{Source: a.source})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	event := OutboxEvent{
		ID:        uuid.New(),
		RoomID:    roomID,
		EventType: eventType,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: a.clock.Now().UTC(),
	}
	if err := a.writer.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	log.Debug().
		Str("room_id", roomID.String()).
		Str("event_id", event.ID.String()).
		Str("event_type", eventType).
		Msg("outbox event inserted")
	return nil
}

// validateEventPayload validates that the event payload is a non-empty JSON document
func validateEventPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("event payload is not valid JSON")
	}
	return nil
}

// DirectWriter skips the table and hands events straight to a Publisher.
// It backs the outbox when the service runs without Postgres.
type DirectWriter struct {
	publisher Publisher
}

// NewDirectWriter creates a DirectWriter
func NewDirectWriter(publisher Publisher) *DirectWriter {
	return &DirectWriter{publisher: publisher}
}

// InsertEvent publishes the event immediately
func (w *DirectWriter) InsertEvent(ctx context.Context, event OutboxEvent) error {
	return w.publisher.Publish(ctx, event)
}
