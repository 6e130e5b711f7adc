// Package config provides configuration for the embedding application.
// All values come from environment variables with sensible defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunables of the accounting core.
type Config struct {
	// DatabasePath is the SQLite file holding the snapshot and usage logs.
	DatabasePath string `env:"GAMETIME_DB_PATH" envDefault:"gametime.db"`

	// SessionCapMinutes is the maximum minutes a single session may consume.
	SessionCapMinutes int `env:"GAMETIME_SESSION_CAP_MINUTES" envDefault:"120"`

	// LogRetention is the usage-log rotation ceiling.
	LogRetention int `env:"GAMETIME_LOG_RETENTION" envDefault:"100"`

	// MaxProfiles bounds the number of child profiles.
	MaxProfiles int `env:"GAMETIME_MAX_PROFILES" envDefault:"2"`

	// MaxGrantMinutes bounds a single grant.
	MaxGrantMinutes int `env:"GAMETIME_MAX_GRANT_MINUTES" envDefault:"999"`

	// PIN gate tuning.
	PINMaxAttempts int           `env:"GAMETIME_PIN_MAX_ATTEMPTS" envDefault:"5"`
	PINLockout     time.Duration `env:"GAMETIME_PIN_LOCKOUT" envDefault:"30s"`

	// Logging
	Development bool   `env:"GAMETIME_DEV" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses environment variables and returns a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
