package countdown

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

// DefaultTickInterval is how often tracked rooms are re-evaluated.
const DefaultTickInterval = time.Second

// Broadcaster pushes per-room countdown ticks to connected clients
type Broadcaster interface {
	BroadcastTimerTick(roomID uuid.UUID, tick events.TimerTickPayload)
}

// OutboxApp defines what the scheduler needs from the outbox app
type OutboxApp interface {
	InsertPhaseChanged(ctx context.Context, roomID uuid.UUID, payload []byte) error
	InsertRoomClosed(ctx context.Context, roomID uuid.UUID, payload []byte) error
}

// RoomCloser marks rooms closed in storage
type RoomCloser interface {
	CloseRoom(ctx context.Context, id uuid.UUID) error
}

type trackedRoom struct {
	createdAt time.Time
	last      timeline.State
}

// Scheduler owns the single repeating ticker of the process. Every tick it
// evaluates all tracked rooms against the timeline, pushes a TimerTick per
// room, and emits PhaseChanged and RoomClosed events when a room crosses a
// boundary. There are no per-room timers.
type Scheduler struct {
	timeline    *timeline.Timeline
	clock       clockwork.Clock
	interval    time.Duration
	broadcaster Broadcaster
	outboxApp   OutboxApp
	closer      RoomCloser
	metrics     *metrics.Metrics

	mu    sync.RWMutex
	rooms map[uuid.UUID]*trackedRoom
}

// NewScheduler creates a countdown scheduler. broadcaster, outboxApp and
// closer may be nil.
func NewScheduler(
	tl *timeline.Timeline,
	clock clockwork.Clock,
	interval time.Duration,
	broadcaster Broadcaster,
	outboxApp OutboxApp,
	closer RoomCloser,
	m *metrics.Metrics,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		timeline:    tl,
		clock:       clock,
		interval:    interval,
		broadcaster: broadcaster,
		outboxApp:   outboxApp,
		closer:      closer,
		metrics:     m,
		rooms:       make(map[uuid.UUID]*trackedRoom),
	}
}

// Track starts (or restarts) the countdown of a room. The room's current
// phase is recorded so only later boundaries produce PhaseChanged events.
func (s *Scheduler) Track(roomID uuid.UUID, createdAt time.Time) {
	state := s.timeline.EvaluateAt(createdAt, s.clock.Now())

	s.mu.Lock()
	s.rooms[roomID] = &trackedRoom{createdAt: createdAt, last: state}
	s.mu.Unlock()

	log.Debug().
		Str("room_id", roomID.String()).
		Str("phase", state.Phase.String()).
		Int64("room_remaining_sec", state.RoomRemainingSec).
		Msg("tracking room countdown")
}

// Untrack stops the countdown of a room
func (s *Scheduler) Untrack(roomID uuid.UUID) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

// Snapshot returns the state computed for a room on the most recent tick.
func (s *Scheduler) Snapshot(roomID uuid.UUID) (timeline.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return timeline.State{}, false
	}
	return room.last, true
}

// Tracked returns the number of rooms being counted down
func (s *Scheduler) Tracked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("countdown scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("tracked", s.Tracked()).Msg("countdown scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

type evaluation struct {
	roomID uuid.UUID
	prev   timeline.State
	state  timeline.State
}

// Tick evaluates every tracked room once at the current clock reading.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	s.mu.RLock()
	evals := make([]evaluation, 0, len(s.rooms))
	for id, room := range s.rooms {
		evals = append(evals, evaluation{
			roomID: id,
			prev:   room.last,
			state:  s.timeline.EvaluateAt(room.createdAt, now),
		})
	}
	s.mu.RUnlock()

	for _, ev := range evals {
		s.broadcastTick(ev.roomID, ev.state, now)

		if ev.state.Phase != ev.prev.Phase {
			s.emitPhaseChanged(ctx, ev.roomID, ev.prev.Phase, ev.state, now)
		}

		if ev.state.Closed() {
			s.closeRoom(ctx, ev.roomID, now)
			continue
		}

		s.mu.Lock()
		if room, ok := s.rooms[ev.roomID]; ok {
			room.last = ev.state
		}
		s.mu.Unlock()
	}

	s.metrics.RecordTick(s.Tracked())
}

func (s *Scheduler) broadcastTick(roomID uuid.UUID, state timeline.State, now time.Time) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastTimerTick(roomID, events.TimerTickPayload{
		RoomID:            roomID.String(),
		Phase:             state.Phase.String(),
		Screen:            string(timeline.ScreenFor(state.Phase)),
		PhaseRemainingSec: state.PhaseRemainingSec,
		RoomRemainingSec:  state.RoomRemainingSec,
		Countdown:         timeline.FormatCountdown(state.RoomRemainingSec),
		ServerTime:        now.UTC(),
	})
}

func (s *Scheduler) emitPhaseChanged(ctx context.Context, roomID uuid.UUID, from timeline.Phase, state timeline.State, now time.Time) {
	s.metrics.RecordPhaseTransition(state.Phase.String())

	log.Info().
		Str("room_id", roomID.String()).
		Str("from_phase", from.String()).
		Str("to_phase", state.Phase.String()).
		Msg("room phase changed")

	if s.outboxApp == nil {
		return
	}
	payload, err := json.Marshal(events.PhaseChangedPayload{
		RoomID:            roomID.String(),
		FromPhase:         from.String(),
		ToPhase:           state.Phase.String(),
		Screen:            string(timeline.ScreenFor(state.Phase)),
		ChangedAt:         now.UTC(),
		PhaseRemainingSec: state.PhaseRemainingSec,
		RoomRemainingSec:  state.RoomRemainingSec,
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to marshal PhaseChanged payload")
		return
	}
	if err := s.outboxApp.InsertPhaseChanged(ctx, roomID, payload); err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to emit PhaseChanged event")
	}
}

func (s *Scheduler) closeRoom(ctx context.Context, roomID uuid.UUID, now time.Time) {
	s.Untrack(roomID)

	if s.closer != nil {
		if err := s.closer.CloseRoom(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to close room")
		}
	}

	if s.outboxApp == nil {
		return
	}
	payload, err := json.Marshal(events.RoomClosedPayload{
		RoomID:   roomID.String(),
		ClosedAt: now.UTC(),
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to marshal RoomClosed payload")
		return
	}
	if err := s.outboxApp.InsertRoomClosed(ctx, roomID, payload); err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to emit RoomClosed event")
	}
}
