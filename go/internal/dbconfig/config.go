package dbconfig

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string `default:"postgres"`
	Password string `default:"postgres"`
	Database string `envconfig:"NAME" default:"dicetalk"`
	SSLMode  string `default:"disable"`
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("DB", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read database config: %w", err)
	}
	return cfg, nil
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}
