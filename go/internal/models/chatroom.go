package models

import (
	"github.com/google/uuid"
)

// RoomType defines the kind of chat room.
type RoomType string

const (
	RoomTypeGroup  RoomType = "GROUP"
	RoomTypeCouple RoomType = "COUPLE"
)

// RoomStatus defines the lifecycle status of a chat room.
type RoomStatus string

const (
	RoomStatusOpen   RoomStatus = "OPEN"
	RoomStatusClosed RoomStatus = "CLOSED"
)

// ChatRoom represents a chat room instance.
// CreatedAt is kept as the ISO-8601 string the backend hands out; it is
// parsed only when a timeline is evaluated.
type ChatRoom struct {
	ID         uuid.UUID  `json:"id"`
	RoomType   RoomType   `json:"room_type"`
	Status     RoomStatus `json:"status"`
	Theme      string     `json:"theme,omitempty"`
	MaxMembers int        `json:"max_members"`
	CreatedAt  string     `json:"created_at"`
	ClosedAt   *string    `json:"closed_at,omitempty"`
}
