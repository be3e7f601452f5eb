package events

import (
	"time"
)

// Event payload types shared between the room, countdown, outbox and gateway packages

// Event type names used on the outbox table and as the last NATS subject token.
const (
	TypeRoomCreated  = "RoomCreated"
	TypePhaseChanged = "PhaseChanged"
	TypeRoomClosed   = "RoomClosed"
	TypeTimerTick    = "TimerTick"
)

// RoomCreatedPayload is the payload for a RoomCreated event
type RoomCreatedPayload struct {
	RoomID      string    `json:"room_id"`
	RoomType    string    `json:"room_type"`
	CreatedAt   time.Time `json:"created_at"`
	ClosesAt    time.Time `json:"closes_at"`
	LifetimeSec int64     `json:"lifetime_sec"`
}

// PhaseChangedPayload is the payload for a PhaseChanged event
type PhaseChangedPayload struct {
	RoomID            string    `json:"room_id"`
	FromPhase         string    `json:"from_phase"`
	ToPhase           string    `json:"to_phase"`
	Screen            string    `json:"screen"`
	ChangedAt         time.Time `json:"changed_at"`
	PhaseRemainingSec int64     `json:"phase_remaining_sec"`
	RoomRemainingSec  int64     `json:"room_remaining_sec"`
}

// RoomClosedPayload is the payload for a RoomClosed event
type RoomClosedPayload struct {
	RoomID   string    `json:"room_id"`
	ClosedAt time.Time `json:"closed_at"`
}

// TimerTickPayload contains the once-per-tick countdown pushed to connected clients
type TimerTickPayload struct {
	RoomID            string    `json:"room_id"`
	Phase             string    `json:"phase"`
	Screen            string    `json:"screen"`
	PhaseRemainingSec int64     `json:"phase_remaining_sec"`
	RoomRemainingSec  int64     `json:"room_remaining_sec"`
	Countdown         string    `json:"countdown"`
	ServerTime        time.Time `json:"server_time"`
}
