// Package clocksync keeps a client-side clock aligned with the server clock
// that room timelines are evaluated against.
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultMaxRTT is the slowest round trip still trusted as a skew sample.
const DefaultMaxRTT = 2 * time.Second

// ErrSampleRejected is returned by Resync when the round trip was too slow to trust.
var ErrSampleRejected = errors.New("server time sample rejected")

// TimeSource reports the server clock
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// SkewClock is a local clock corrected by the offset last measured against a TimeSource.
type SkewClock struct {
	local  clockwork.Clock
	source TimeSource
	maxRTT time.Duration

	mu       sync.RWMutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

// New creates a SkewClock. Until the first successful Resync it reads the
// same as the local clock.
func New(local clockwork.Clock, source TimeSource, maxRTT time.Duration) *SkewClock {
	if maxRTT <= 0 {
		maxRTT = DefaultMaxRTT
	}
	return &SkewClock{
		local:  local,
		source: source,
		maxRTT: maxRTT,
	}
}

// Now returns the local time shifted by the measured offset.
func (c *SkewClock) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return c.local.Now().Add(offset)
}

// Offset returns the current server-minus-local correction.
func (c *SkewClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Synced reports whether at least one sample has been accepted, and when.
func (c *SkewClock) Synced() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync, c.synced
}

// Resync samples the server clock once. The server reading is assumed to be
// taken halfway through the round trip.
func (c *SkewClock) Resync(ctx context.Context) (time.Duration, error) {
	before := c.local.Now()
	server, err := c.source.ServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read server time: %w", err)
	}
	after := c.local.Now()

	rtt := after.Sub(before)
	if rtt < 0 {
		rtt = 0
	}
	if rtt > c.maxRTT {
		return 0, fmt.Errorf("%w: round trip %s exceeds %s", ErrSampleRejected, rtt, c.maxRTT)
	}

	offset := server.Add(rtt / 2).Sub(after)

	c.mu.Lock()
	c.offset = offset
	c.lastSync = after
	c.synced = true
	c.mu.Unlock()

	log.Debug().Dur("offset", offset).Dur("rtt", rtt).Msg("clock resynced")
	return offset, nil
}

// Run resyncs immediately and then every interval until ctx is cancelled.
// Failed samples are logged and keep the previous offset.
func (c *SkewClock) Run(ctx context.Context, interval time.Duration) error {
	ticker := c.local.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Resync(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("clock resync failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}
