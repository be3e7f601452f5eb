package room

import (
	"errors"
	"time"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/models"
)

// ErrRoomNotFound is returned when no room exists with the requested ID.
var ErrRoomNotFound = errors.New("room not found")

// ErrInvalidRequest wraps validation failures on room requests.
var ErrInvalidRequest = errors.New("invalid room request")

// CreateRoomRequest represents a request to open a new chat room
type CreateRoomRequest struct {
	RoomType   models.RoomType `json:"room_type"`
	Theme      string          `json:"theme"`
	MaxMembers int             `json:"max_members"`
}

// TimelineView is the timeline of one room as served to clients
type TimelineView struct {
	Room       *models.ChatRoom `json:"room"`
	State      timeline.State   `json:"state"`
	Screen     timeline.Screen  `json:"screen"`
	Countdown  string           `json:"countdown"`
	ServerTime time.Time        `json:"server_time"`
	ClosesAt   *time.Time       `json:"closes_at,omitempty"`
	// Degraded is set when the stored created_at could not be parsed and the
	// not-yet-started default was served instead.
	Degraded bool `json:"degraded,omitempty"`
}
