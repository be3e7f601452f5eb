package timeline

import (
	"fmt"
	"math"
	"time"
)

// Default phase lengths shipped with the app, in seconds.
const (
	DefaultSecretMessageStart    = 360
	DefaultSecretMessageDuration = 360
	DefaultCupidInterimDuration  = 360
	DefaultCupidMainDuration     = 360
	DefaultPostCupidDuration     = 360
)

// Config holds the phase offsets of a chat room, all in seconds since room creation.
// Start offsets are cumulative: every phase starts where the previous one ends.
type Config struct {
	SecretMessageStart    int64 `yaml:"secret_message_start_sec" json:"secret_message_start_sec"`
	SecretMessageDuration int64 `yaml:"secret_message_duration_sec" json:"secret_message_duration_sec"`
	CupidInterimStart     int64 `yaml:"cupid_interim_start_sec" json:"cupid_interim_start_sec"`
	CupidInterimDuration  int64 `yaml:"cupid_interim_duration_sec" json:"cupid_interim_duration_sec"`
	CupidMainStart        int64 `yaml:"cupid_main_start_sec" json:"cupid_main_start_sec"`
	CupidMainDuration     int64 `yaml:"cupid_main_duration_sec" json:"cupid_main_duration_sec"`
	PostCupidDuration     int64 `yaml:"post_cupid_duration_sec" json:"post_cupid_duration_sec"`
}

// NewConfig builds a contiguous Config from phase lengths.
func NewConfig(preSecret, secretMessage, cupidInterim, cupidMain, postCupid int64) Config {
	return Config{
		SecretMessageStart:    preSecret,
		SecretMessageDuration: secretMessage,
		CupidInterimStart:     preSecret + secretMessage,
		CupidInterimDuration:  cupidInterim,
		CupidMainStart:        preSecret + secretMessage + cupidInterim,
		CupidMainDuration:     cupidMain,
		PostCupidDuration:     postCupid,
	}
}

// DefaultConfig returns the production timeline: five 6 minute phases, 30 minutes in total.
func DefaultConfig() Config {
	return NewConfig(
		DefaultSecretMessageStart,
		DefaultSecretMessageDuration,
		DefaultCupidInterimDuration,
		DefaultCupidMainDuration,
		DefaultPostCupidDuration,
	)
}

// PostCupidStart is the offset at which the cupid main event ends.
func (c Config) PostCupidStart() int64 {
	return c.CupidMainStart + c.CupidMainDuration
}

// RoomEnd is the authoritative room lifetime in seconds.
func (c Config) RoomEnd() int64 {
	return c.PostCupidStart() + c.PostCupidDuration
}

// MaxRoomEnd is the longest room lifetime, in seconds, that still fits a time.Duration.
const MaxRoomEnd = math.MaxInt64 / int64(time.Second)

// RoomLifetime is RoomEnd as a time.Duration.
func (c Config) RoomLifetime() time.Duration {
	return time.Duration(c.RoomEnd()) * time.Second
}

// Validate checks that every value is non-negative and that phases are
// contiguous: each start offset must equal the end of the phase before it.
// The room end must also fit in a time.Duration.
func (c Config) Validate() error {
	fields := []struct {
		name  string
		value int64
	}{
		{"secret_message_start_sec", c.SecretMessageStart},
		{"secret_message_duration_sec", c.SecretMessageDuration},
		{"cupid_interim_start_sec", c.CupidInterimStart},
		{"cupid_interim_duration_sec", c.CupidInterimDuration},
		{"cupid_main_start_sec", c.CupidMainStart},
		{"cupid_main_duration_sec", c.CupidMainDuration},
		{"post_cupid_duration_sec", c.PostCupidDuration},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrConfigurationInvariant, f.name, f.value)
		}
	}

	end, ok := addChecked(c.SecretMessageStart, c.SecretMessageDuration)
	if !ok {
		return fmt.Errorf("%w: secret message end overflows", ErrConfigurationInvariant)
	}
	if c.CupidInterimStart != end {
		return fmt.Errorf("%w: cupid_interim_start_sec %d does not follow secret message end %d",
			ErrConfigurationInvariant, c.CupidInterimStart, end)
	}
	if end, ok = addChecked(c.CupidInterimStart, c.CupidInterimDuration); !ok {
		return fmt.Errorf("%w: cupid interim end overflows", ErrConfigurationInvariant)
	}
	if c.CupidMainStart != end {
		return fmt.Errorf("%w: cupid_main_start_sec %d does not follow cupid interim end %d",
			ErrConfigurationInvariant, c.CupidMainStart, end)
	}
	if end, ok = addChecked(c.CupidMainStart, c.CupidMainDuration); !ok {
		return fmt.Errorf("%w: cupid main end overflows", ErrConfigurationInvariant)
	}
	if end, ok = addChecked(end, c.PostCupidDuration); !ok {
		return fmt.Errorf("%w: room end overflows", ErrConfigurationInvariant)
	}
	if end > MaxRoomEnd {
		return fmt.Errorf("%w: room end %d exceeds %d seconds",
			ErrConfigurationInvariant, end, MaxRoomEnd)
	}

	return nil
}

// addChecked adds two non-negative values, reporting false on overflow.
func addChecked(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}

// segment is one half-open [start, end) interval of the room lifetime.
type segment struct {
	phase Phase
	start int64
	end   int64
}

func (c Config) segments() []segment {
	return []segment{
		{PhasePreSecret, 0, c.SecretMessageStart},
		{PhaseSecretMessage, c.SecretMessageStart, c.CupidInterimStart},
		{PhaseCupidInterim, c.CupidInterimStart, c.CupidMainStart},
		{PhaseCupidMain, c.CupidMainStart, c.PostCupidStart()},
		{PhasePostCupid, c.PostCupidStart(), c.RoomEnd()},
	}
}
