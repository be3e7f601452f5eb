package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
)

// ErrUnroutable marks an event the gateway can never deliver, such as an
// unknown type or a malformed room ID. Redelivering it will not help.
var ErrUnroutable = errors.New("unroutable event")

// RoomEvent is the frame written to websocket clients
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func knownEventType(eventType string) bool {
	switch eventType {
	case events.TypeRoomCreated, events.TypePhaseChanged, events.TypeRoomClosed, events.TypeTimerTick:
		return true
	}
	return false
}
