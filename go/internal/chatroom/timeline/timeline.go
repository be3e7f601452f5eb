package timeline

import (
	"fmt"
	"strings"
	"time"
)

// State is the derived view of a room at one instant.
type State struct {
	Phase             Phase `json:"phase"`
	NextPhase         Phase `json:"next_phase"`
	ElapsedSec        int64 `json:"elapsed_sec"`
	PhaseRemainingSec int64 `json:"phase_remaining_sec"`
	RoomRemainingSec  int64 `json:"room_remaining_sec"`
}

// Closed reports whether the room has reached the end of its lifetime.
func (s State) Closed() bool {
	return s.Phase == PhaseClosed
}

// RoomClock pairs a room's creation instant with a sampled wall-clock time.
type RoomClock struct {
	CreatedAt time.Time
	Now       time.Time
}

// Elapsed returns whole seconds since creation, clamped to [0, roomEnd].
func (rc RoomClock) Elapsed(roomEnd int64) int64 {
	elapsed := int64(rc.Now.Sub(rc.CreatedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}
	if elapsed > roomEnd {
		return roomEnd
	}
	return elapsed
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithLocation sets the zone used for created-at values that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(t *Timeline) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// Timeline evaluates chat room phases for a fixed Config.
// It holds no mutable state and is safe for concurrent use.
type Timeline struct {
	cfg      Config
	segments []segment
	loc      *time.Location
}

// New validates cfg and returns a Timeline.
func New(cfg Config, opts ...Option) (*Timeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Timeline{
		cfg:      cfg,
		segments: cfg.segments(),
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// MustNew is New for process start-up; it panics on an invalid Config.
func MustNew(cfg Config, opts ...Option) *Timeline {
	t, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Config returns the configuration the timeline was built with.
func (t *Timeline) Config() Config {
	return t.cfg
}

// Evaluate parses createdAt and evaluates the room at now.
// When createdAt cannot be parsed it returns ErrInvalidTimestamp together with
// the not-yet-started state, so callers can keep rendering a full countdown.
func (t *Timeline) Evaluate(createdAt string, now time.Time) (State, error) {
	created, err := t.ParseCreatedAt(createdAt)
	if err != nil {
		return t.EvaluateElapsed(0), err
	}
	return t.EvaluateAt(created, now), nil
}

// EvaluateAt evaluates a room created at createdAt as seen at now.
func (t *Timeline) EvaluateAt(createdAt, now time.Time) State {
	rc := RoomClock{CreatedAt: createdAt, Now: now}
	return t.EvaluateElapsed(rc.Elapsed(t.cfg.RoomEnd()))
}

// EvaluateElapsed maps an elapsed second count onto a State.
func (t *Timeline) EvaluateElapsed(elapsed int64) State {
	roomEnd := t.cfg.RoomEnd()
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= roomEnd {
		return State{
			Phase:      PhaseClosed,
			NextPhase:  PhaseClosed,
			ElapsedSec: roomEnd,
		}
	}

	for _, seg := range t.segments {
		if elapsed >= seg.start && elapsed < seg.end {
			return State{
				Phase:             seg.phase,
				NextPhase:         t.nextNonEmpty(seg.phase),
				ElapsedSec:        elapsed,
				PhaseRemainingSec: seg.end - elapsed,
				RoomRemainingSec:  roomEnd - elapsed,
			}
		}
	}

	// unreachable for a validated config: the segments cover [0, roomEnd)
	return State{Phase: PhaseClosed, NextPhase: PhaseClosed, ElapsedSec: roomEnd}
}

// PhaseStart returns the offset in seconds at which phase p begins.
func (t *Timeline) PhaseStart(p Phase) int64 {
	for _, seg := range t.segments {
		if seg.phase == p {
			return seg.start
		}
	}
	return t.cfg.RoomEnd()
}

// PhaseEnd returns the offset in seconds at which phase p ends.
func (t *Timeline) PhaseEnd(p Phase) int64 {
	for _, seg := range t.segments {
		if seg.phase == p {
			return seg.end
		}
	}
	return t.cfg.RoomEnd()
}

// ClosesAt returns the wall-clock instant a room created at createdAt closes.
func (t *Timeline) ClosesAt(createdAt time.Time) time.Time {
	return createdAt.Add(t.cfg.RoomLifetime())
}

// nextNonEmpty skips zero-width phases so NextPhase is the one a client will actually see.
func (t *Timeline) nextNonEmpty(p Phase) Phase {
	next := p.Next()
	for next != PhaseClosed && t.PhaseStart(next) == t.PhaseEnd(next) {
		next = next.Next()
	}
	return next
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseCreatedAt parses an ISO-8601 created-at value. Values without a zone
// offset are read in the timeline's location.
func (t *Timeline) ParseCreatedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, raw, t.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}
