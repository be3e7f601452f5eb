package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
)

// OutboxEvent represents an outbox event for the application layer
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Envelope wraps the event for the bus
func (e OutboxEvent) Envelope(now time.Time) events.Envelope {
	return events.Envelope{
		EventID:   e.ID.String(),
		EventType: e.EventType,
		RoomID:    e.RoomID.String(),
		Timestamp: now.UTC(),
		Payload:   e.Payload,
	}
}

// Publisher delivers outbox events to the bus
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
