package clocksync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeServer runs skew ahead of the local clock and takes rtt to answer.
type fakeServer struct {
	local *clockwork.FakeClock
	skew  time.Duration
	rtt   time.Duration
	err   error
	calls atomic.Int32
}

func (s *fakeServer) ServerTime(ctx context.Context) (time.Time, error) {
	s.calls.Add(1)
	if s.err != nil {
		return time.Time{}, s.err
	}
	s.local.Advance(s.rtt / 2)
	server := s.local.Now().Add(s.skew)
	s.local.Advance(s.rtt / 2)
	return server, nil
}

func TestSkewClock_Resync(t *testing.T) {
	tests := []struct {
		name string
		skew time.Duration
		rtt  time.Duration
	}{
		{"server ahead", 90 * time.Second, 200 * time.Millisecond},
		{"server behind", -3 * time.Minute, 40 * time.Millisecond},
		{"in sync", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := clockwork.NewFakeClockAt(epoch)
			server := &fakeServer{local: local, skew: tt.skew, rtt: tt.rtt}
			clock := New(local, server, time.Second)

			offset, err := clock.Resync(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.skew, offset)
			assert.Equal(t, local.Now().Add(tt.skew), clock.Now())

			at, ok := clock.Synced()
			assert.True(t, ok)
			assert.Equal(t, local.Now(), at)
		})
	}
}

func TestSkewClock_UnsyncedReadsLocal(t *testing.T) {
	local := clockwork.NewFakeClockAt(epoch)
	clock := New(local, &fakeServer{local: local}, 0)

	assert.Equal(t, epoch, clock.Now())
	_, ok := clock.Synced()
	assert.False(t, ok)
}

func TestSkewClock_RejectsSlowSample(t *testing.T) {
	local := clockwork.NewFakeClockAt(epoch)
	server := &fakeServer{local: local, skew: time.Minute, rtt: 5 * time.Second}
	clock := New(local, server, time.Second)

	_, err := clock.Resync(context.Background())
	require.ErrorIs(t, err, ErrSampleRejected)
	assert.Equal(t, time.Duration(0), clock.Offset())
}

func TestSkewClock_SourceErrorKeepsOffset(t *testing.T) {
	local := clockwork.NewFakeClockAt(epoch)
	server := &fakeServer{local: local, skew: 10 * time.Second}
	clock := New(local, server, time.Second)

	_, err := clock.Resync(context.Background())
	require.NoError(t, err)

	server.err = errors.New("connection refused")
	_, err = clock.Resync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 10*time.Second, clock.Offset())
}

func TestSkewClock_Run(t *testing.T) {
	local := clockwork.NewFakeClockAt(epoch)
	server := &fakeServer{local: local, skew: time.Second}
	clock := New(local, server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clock.Run(ctx, time.Minute) }()

	require.NoError(t, local.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return server.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	local.Advance(time.Minute)
	assert.Eventually(t, func() bool { return server.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resync loop did not stop")
	}
}
