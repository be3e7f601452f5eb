package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
	"github.com/dice-talk/dicetalk/go/internal/models"
)

// RoomRepository defines what the room app layer needs from storage
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
	ListOpenRooms(ctx context.Context) ([]*models.ChatRoom, error)
	CloseRoom(ctx context.Context, id uuid.UUID, closedAt time.Time) error
}

// Tracker is the countdown scheduler as seen by the room app
type Tracker interface {
	Track(roomID uuid.UUID, createdAt time.Time)
	Untrack(roomID uuid.UUID)
}

// OutboxApp defines what the room app needs from the outbox app
type OutboxApp interface {
	InsertRoomCreated(ctx context.Context, roomID uuid.UUID, payload []byte) error
}

// App handles chat room business logic
type App struct {
	repo     RoomRepository
	timeline *timeline.Timeline
	clock    clockwork.Clock
	outbox   OutboxApp
	tracker  Tracker
	metrics  *metrics.Metrics
}

// NewApp creates a new room App. The tracker is attached later with
// AttachTracker because the scheduler itself closes rooms through the App.
func NewApp(repo RoomRepository, tl *timeline.Timeline, clock clockwork.Clock, outbox OutboxApp, m *metrics.Metrics) *App {
	return &App{
		repo:     repo,
		timeline: tl,
		clock:    clock,
		outbox:   outbox,
		metrics:  m,
	}
}

// AttachTracker wires the countdown scheduler.
func (a *App) AttachTracker(t Tracker) {
	a.tracker = t
}

// Timeline returns the timeline rooms are evaluated against.
func (a *App) Timeline() *timeline.Timeline {
	return a.timeline
}

// Now returns the server clock reading.
func (a *App) Now() time.Time {
	return a.clock.Now().UTC()
}

// CreateRoom opens a new room stamped with the server clock and starts its countdown
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.ChatRoom, error) {
	if err := validateCreateRoomRequest(&req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := a.Now()
	room := &models.ChatRoom{
		ID:         uuid.New(),
		RoomType:   req.RoomType,
		Status:     models.RoomStatusOpen,
		Theme:      req.Theme,
		MaxMembers: req.MaxMembers,
		CreatedAt:  now.Format(time.RFC3339Nano),
	}

	if err := a.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if a.tracker != nil {
		a.tracker.Track(room.ID, now)
	}

	if err := a.emitRoomCreated(ctx, room, now); err != nil {
		// Don't fail the operation; the room exists and is tracked
		log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to emit RoomCreated event")
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("room_type", string(room.RoomType)).
		Str("created_at", room.CreatedAt).
		Msg("created room")
	return room, nil
}

// GetRoom retrieves a room by ID
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	room, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// GetTimeline evaluates a room's timeline at the current server time.
// A room whose created_at cannot be parsed is served the not-yet-started
// state with Degraded set, never an error.
func (a *App) GetTimeline(ctx context.Context, id uuid.UUID) (*TimelineView, error) {
	room, err := a.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	now := a.Now()
	view := &TimelineView{
		Room:       room,
		ServerTime: now,
	}

	createdAt, err := a.timeline.ParseCreatedAt(room.CreatedAt)
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", room.ID.String()).
			Msg("room has invalid created_at; serving full countdown")
		a.metrics.RecordInvalidTimestamp()
		view.Degraded = true
		view.State = a.timeline.EvaluateElapsed(0)
	} else {
		closesAt := a.timeline.ClosesAt(createdAt)
		view.ClosesAt = &closesAt
		view.State = a.timeline.EvaluateAt(createdAt, now)
	}

	view.Screen = timeline.ScreenFor(view.State.Phase)
	view.Countdown = timeline.FormatCountdown(view.State.RoomRemainingSec)
	return view, nil
}

// ListOpenRooms returns every room that has not been closed yet
func (a *App) ListOpenRooms(ctx context.Context) ([]*models.ChatRoom, error) {
	rooms, err := a.repo.ListOpenRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open rooms: %w", err)
	}
	return rooms, nil
}

// CloseRoom marks a room closed in storage
func (a *App) CloseRoom(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.CloseRoom(ctx, id, a.Now()); err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}
	log.Info().Str("room_id", id.String()).Msg("closed room")
	return nil
}

// Resume re-tracks every open room after a restart. Rooms whose lifetime has
// already run out are closed instead; rooms with an unreadable created_at are
// skipped and logged. It returns the number of rooms tracked.
func (a *App) Resume(ctx context.Context) (int, error) {
	rooms, err := a.ListOpenRooms(ctx)
	if err != nil {
		return 0, err
	}

	now := a.Now()
	tracked := 0
	for _, room := range rooms {
		createdAt, err := a.timeline.ParseCreatedAt(room.CreatedAt)
		if err != nil {
			log.Warn().Err(err).Str("room_id", room.ID.String()).Msg("skipping room with invalid created_at")
			a.metrics.RecordInvalidTimestamp()
			continue
		}

		if a.timeline.EvaluateAt(createdAt, now).Closed() {
			if err := a.CloseRoom(ctx, room.ID); err != nil {
				log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to close expired room")
			}
			continue
		}

		if a.tracker != nil {
			a.tracker.Track(room.ID, createdAt)
		}
		tracked++
	}

	log.Info().Int("tracked", tracked).Int("open", len(rooms)).Msg("resumed room countdowns")
	return tracked, nil
}

func (a *App) emitRoomCreated(ctx context.Context, room *models.ChatRoom, createdAt time.Time) error {
	if a.outbox == nil {
		return nil
	}
	cfg := a.timeline.Config()
	payload, err := json.Marshal(events.RoomCreatedPayload{
		RoomID:      room.ID.String(),
		RoomType:    string(room.RoomType),
		CreatedAt:   createdAt,
		ClosesAt:    a.timeline.ClosesAt(createdAt),
		LifetimeSec: cfg.RoomEnd(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RoomCreated payload: %w", err)
	}
	return a.outbox.InsertRoomCreated(ctx, room.ID, payload)
}

func validateCreateRoomRequest(req *CreateRoomRequest) error {
	var min, max int
	switch req.RoomType {
	case models.RoomTypeCouple:
		min, max = 2, 2
	case models.RoomTypeGroup:
		min, max = 2, 6
	default:
		return fmt.Errorf("%w: unknown room_type %q", ErrInvalidRequest, req.RoomType)
	}

	if req.MaxMembers == 0 {
		req.MaxMembers = max
	}
	if req.MaxMembers < min || req.MaxMembers > max {
		return fmt.Errorf("%w: max_members for %s must be between %d and %d",
			ErrInvalidRequest, req.RoomType, min, max)
	}
	if len(req.Theme) > 64 {
		return fmt.Errorf("%w: theme is longer than 64 bytes", ErrInvalidRequest)
	}
	return nil
}
