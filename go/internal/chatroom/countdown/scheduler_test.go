package countdown

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dice-talk/dicetalk/go/internal/chatroom/events"
	"github.com/dice-talk/dicetalk/go/internal/chatroom/timeline"
	"github.com/dice-talk/dicetalk/go/internal/metrics"
)

var epoch = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type recordingBroadcaster struct {
	mu    sync.Mutex
	ticks []events.TimerTickPayload
	ch    chan events.TimerTickPayload
}

func (b *recordingBroadcaster) BroadcastTimerTick(roomID uuid.UUID, tick events.TimerTickPayload) {
	b.mu.Lock()
	b.ticks = append(b.ticks, tick)
	b.mu.Unlock()
	if b.ch != nil {
		b.ch <- tick
	}
}

func (b *recordingBroadcaster) last() events.TimerTickPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticks[len(b.ticks)-1]
}

type recordedEvent struct {
	eventType string
	roomID    uuid.UUID
	payload   []byte
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (o *recordingOutbox) InsertPhaseChanged(ctx context.Context, roomID uuid.UUID, payload []byte) error {
	return o.add(events.TypePhaseChanged, roomID, payload)
}

func (o *recordingOutbox) InsertRoomClosed(ctx context.Context, roomID uuid.UUID, payload []byte) error {
	return o.add(events.TypeRoomClosed, roomID, payload)
}

func (o *recordingOutbox) add(eventType string, roomID uuid.UUID, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, recordedEvent{eventType: eventType, roomID: roomID, payload: payload})
	return nil
}

func (o *recordingOutbox) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.eventType)
	}
	return out
}

type recordingCloser struct {
	closed []uuid.UUID
}

func (c *recordingCloser) CloseRoom(ctx context.Context, id uuid.UUID) error {
	c.closed = append(c.closed, id)
	return nil
}

type fixture struct {
	scheduler   *Scheduler
	clock       *clockwork.FakeClock
	broadcaster *recordingBroadcaster
	outbox      *recordingOutbox
	closer      *recordingCloser
	metrics     *metrics.Metrics
}

func newFixture(cfg timeline.Config) *fixture {
	f := &fixture{
		clock:       clockwork.NewFakeClockAt(epoch),
		broadcaster: &recordingBroadcaster{},
		outbox:      &recordingOutbox{},
		closer:      &recordingCloser{},
		metrics:     metrics.New(),
	}
	f.scheduler = NewScheduler(timeline.MustNew(cfg), f.clock, time.Second, f.broadcaster, f.outbox, f.closer, f.metrics)
	return f
}

func TestScheduler_TickBroadcastsCountdown(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch)

	f.clock.Advance(100 * time.Second)
	f.scheduler.Tick(context.Background())

	require.Len(t, f.broadcaster.ticks, 1)
	tick := f.broadcaster.last()
	assert.Equal(t, roomID.String(), tick.RoomID)
	assert.Equal(t, string(timeline.PhasePreSecret), tick.Phase)
	assert.Equal(t, string(timeline.ScreenWaitingRoom), tick.Screen)
	assert.Equal(t, int64(260), tick.PhaseRemainingSec)
	assert.Equal(t, int64(1700), tick.RoomRemainingSec)
	assert.Equal(t, "00:28:20", tick.Countdown)
	assert.Empty(t, f.outbox.types())

	state, ok := f.scheduler.Snapshot(roomID)
	require.True(t, ok)
	assert.Equal(t, int64(100), state.ElapsedSec)
}

func TestScheduler_PhaseChangedOnBoundary(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch)

	f.clock.Advance(359 * time.Second)
	f.scheduler.Tick(context.Background())
	assert.Empty(t, f.outbox.types())

	f.clock.Advance(time.Second)
	f.scheduler.Tick(context.Background())
	require.Equal(t, []string{events.TypePhaseChanged}, f.outbox.types())

	var payload events.PhaseChangedPayload
	require.NoError(t, json.Unmarshal(f.outbox.events[0].payload, &payload))
	assert.Equal(t, string(timeline.PhasePreSecret), payload.FromPhase)
	assert.Equal(t, string(timeline.PhaseSecretMessage), payload.ToPhase)
	assert.Equal(t, string(timeline.ScreenSecretMessageComposer), payload.Screen)
	assert.Equal(t, int64(360), payload.PhaseRemainingSec)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		f.metrics.PhaseTransitionsTotal.WithLabelValues(string(timeline.PhaseSecretMessage))))

	// no duplicate on the next tick inside the same phase
	f.clock.Advance(time.Second)
	f.scheduler.Tick(context.Background())
	assert.Len(t, f.outbox.types(), 1)
}

func TestScheduler_SkippedTicksStillReportLatestPhase(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch)

	// a stalled process jumps straight from PRE_SECRET into CUPID_MAIN
	f.clock.Advance(1100 * time.Second)
	f.scheduler.Tick(context.Background())

	require.Len(t, f.outbox.events, 1)
	var payload events.PhaseChangedPayload
	require.NoError(t, json.Unmarshal(f.outbox.events[0].payload, &payload))
	assert.Equal(t, string(timeline.PhasePreSecret), payload.FromPhase)
	assert.Equal(t, string(timeline.PhaseCupidMain), payload.ToPhase)
}

func TestScheduler_ClosesRoomAtEnd(t *testing.T) {
	f := newFixture(timeline.NewConfig(0, 2, 0, 0, 1))
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch)

	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Second)
		f.scheduler.Tick(context.Background())
	}

	assert.Equal(t, []string{
		events.TypePhaseChanged, // SECRET_MESSAGE -> POST_CUPID
		events.TypePhaseChanged, // POST_CUPID -> CLOSED
		events.TypeRoomClosed,
	}, f.outbox.types())
	assert.Equal(t, []uuid.UUID{roomID}, f.closer.closed)
	assert.Equal(t, 0, f.scheduler.Tracked())

	_, ok := f.scheduler.Snapshot(roomID)
	assert.False(t, ok)

	last := f.broadcaster.last()
	assert.Equal(t, string(timeline.ScreenRoomClosed), last.Screen)
	assert.Equal(t, "00:00:00", last.Countdown)

	// nothing left to tick
	f.clock.Advance(time.Second)
	f.scheduler.Tick(context.Background())
	assert.Len(t, f.outbox.types(), 3)
}

func TestScheduler_TrackAlreadyExpiredRoom(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch.Add(-time.Hour))

	f.scheduler.Tick(context.Background())

	assert.Equal(t, []string{events.TypeRoomClosed}, f.outbox.types())
	assert.Equal(t, []uuid.UUID{roomID}, f.closer.closed)
}

func TestScheduler_Untrack(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	roomID := uuid.New()
	f.scheduler.Track(roomID, epoch)
	f.scheduler.Untrack(roomID)

	f.scheduler.Tick(context.Background())
	assert.Empty(t, f.broadcaster.ticks)
	assert.Equal(t, 0, f.scheduler.Tracked())
}

func TestScheduler_NilCollaborators(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := NewScheduler(timeline.MustNew(timeline.NewConfig(0, 1, 0, 0, 0)), clock, 0, nil, nil, nil, nil)
	s.Track(uuid.New(), epoch)

	clock.Advance(2 * time.Second)
	assert.NotPanics(t, func() { s.Tick(context.Background()) })
	assert.Equal(t, 0, s.Tracked())
}

func TestScheduler_Run(t *testing.T) {
	f := newFixture(timeline.DefaultConfig())
	f.broadcaster.ch = make(chan events.TimerTickPayload, 1)
	f.scheduler.Track(uuid.New(), epoch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)

	select {
	case tick := <-f.broadcaster.ch:
		assert.Equal(t, int64(1799), tick.RoomRemainingSec)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not tick")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
