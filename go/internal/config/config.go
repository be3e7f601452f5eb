package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds the API server configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Storage
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"dicetalk.db"`

	// Messaging (optional; without it events are delivered in-process)
	NATSURL string `envconfig:"NATS_URL"`
	// Run the outbox relay inside the API process. Always on without NATS.
	EmbeddedRelay bool `envconfig:"OUTBOX_EMBEDDED_RELAY" default:"false"`

	// Websocket auth (optional; anonymous connections are allowed when empty)
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Timeline
	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"1s"`
	TimelineProfile string        `envconfig:"TIMELINE_PROFILE"`
	TimestampZone   string        `envconfig:"TIMESTAMP_ZONE" default:"UTC"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if _, err := time.LoadLocation(c.TimestampZone); err != nil {
		return fmt.Errorf("invalid TIMESTAMP_ZONE %q: %w", c.TimestampZone, err)
	}
	return nil
}

// Location returns the zone used for created_at values without an offset.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimestampZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NATSEnabled returns true if a NATS URL is configured.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// RunEmbeddedRelay reports whether the API process relays its own outbox rows.
func (c *Config) RunEmbeddedRelay() bool {
	return c.StoreDriver == StoreDriverPostgres && (c.EmbeddedRelay || !c.NATSEnabled())
}

// CORSOriginList returns the parsed list of allowed origins.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
