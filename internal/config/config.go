// Package config defines service configuration and its defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/whodunit/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects where templates, evidence and the journal live: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// SeedPath points at a YAML case seed. Empty uses the built-in cases.
	SeedPath string `koanf:"seed_path"`

	// ActiveIDStart is the id given to the first active case.
	ActiveIDStart int64 `koanf:"active_id_start"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// JournalQueueSize bounds the in-memory journal queue.
	JournalQueueSize int `koanf:"journal_queue_size"`

	// JournalWorkers sets the number of journal writers.
	JournalWorkers int `koanf:"journal_workers"`

	// JournalDedupeSize sets how many recent journal ids are remembered.
	JournalDedupeSize int `koanf:"journal_dedupe_size"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Scoring overrides the delta of individual scoring events.
	Scoring map[string]int64 `koanf:"scoring"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		SQLitePath:          "data/whodunit.db",
		ActiveIDStart:       100,
		MaxLeaderboardLimit: 100,
		JournalQueueSize:    4096,
		JournalWorkers:      2,
		JournalDedupeSize:   50_000,
		ShutdownTimeout:     10 * time.Second,
		Scoring:             map[string]int64{},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StoreSQLite, c.Store)
	case c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path must not be empty when store is sqlite", ErrInvalidConfig)
	case c.ActiveIDStart <= 0:
		return fmt.Errorf("%w: active_id_start must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.JournalQueueSize <= 0:
		return fmt.Errorf("%w: journal_queue_size must be positive", ErrInvalidConfig)
	case c.JournalWorkers <= 0:
		return fmt.Errorf("%w: journal_workers must be positive", ErrInvalidConfig)
	case c.JournalDedupeSize <= 0:
		return fmt.Errorf("%w: journal_dedupe_size must be positive", ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := scoring.NewPolicy(scoring.WithDeltasFromConfig(c.Scoring)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
