package timeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(360), cfg.SecretMessageStart)
	assert.Equal(t, int64(720), cfg.CupidInterimStart)
	assert.Equal(t, int64(1080), cfg.CupidMainStart)
	assert.Equal(t, int64(1440), cfg.PostCupidStart())
	assert.Equal(t, int64(1800), cfg.RoomEnd())
	assert.Equal(t, 30*time.Minute, cfg.RoomLifetime())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"all zero", func(c *Config) { *c = NewConfig(0, 0, 0, 0, 0) }, false},
		{"negative lead-in", func(c *Config) { c.SecretMessageStart = -1 }, true},
		{"negative post cupid", func(c *Config) { c.PostCupidDuration = -5 }, true},
		{"overlapping interim", func(c *Config) { c.CupidInterimStart = 600 }, true},
		{"gap before interim", func(c *Config) { c.CupidInterimStart = 800 }, true},
		{"overlapping main", func(c *Config) { c.CupidMainStart = 900 }, true},
		{"gap before main", func(c *Config) { c.CupidMainStart = 1200 }, true},
		{"overflowing lifetime", func(c *Config) { *c = NewConfig(360, 360, 360, 360, math.MaxInt64-1000) }, true},
		{"overflowing offsets", func(c *Config) { *c = NewConfig(math.MaxInt64, 1, 0, 0, 0) }, true},
		{"longest lifetime", func(c *Config) { *c = NewConfig(0, 0, 0, 0, MaxRoomEnd) }, false},
		{"lifetime past duration range", func(c *Config) { *c = NewConfig(0, 0, 0, 0, MaxRoomEnd+1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfigurationInvariant)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("empty document keeps defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("durations override defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
timeline:
  secret_message_start_sec: 0
  cupid_main_duration_sec: 120
`))
		require.NoError(t, err)
		assert.Equal(t, int64(0), cfg.SecretMessageStart)
		assert.Equal(t, int64(360), cfg.CupidInterimStart)
		assert.Equal(t, int64(720), cfg.CupidMainStart)
		assert.Equal(t, int64(1200), cfg.RoomEnd())
	})

	t.Run("consistent explicit offsets", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
timeline:
  cupid_interim_start_sec: 720
  cupid_main_start_sec: 1080
`))
		assert.NoError(t, err)
	})

	t.Run("inconsistent explicit offset", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
timeline:
  cupid_interim_start_sec: 700
`))
		assert.ErrorIs(t, err, ErrConfigurationInvariant)
	})

	t.Run("negative duration", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
timeline:
  post_cupid_duration_sec: -1
`))
		assert.ErrorIs(t, err, ErrConfigurationInvariant)
	})

	t.Run("overflowing lifetime", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
timeline:
  post_cupid_duration_sec: 9223372036854775000
`))
		assert.ErrorIs(t, err, ErrConfigurationInvariant)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
timeline:
  cupid_duration_sec: 10
`))
		assert.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "timeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeline:\n  post_cupid_duration_sec: 60\n"), 0o600))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), cfg.RoomEnd())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
