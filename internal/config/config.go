package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for photosync.
// Per-account upload policy is not configured here; it lives in the
// accounts file (see internal/account).
type Config struct {
	// AccountsFile is the path to the YAML file describing accounts and
	// their auto-upload policies.
	AccountsFile string `env:"PHOTOSYNC_ACCOUNTS_FILE" envDefault:"accounts.yaml"`

	// StateDBPath is the bbolt database holding file metadata, directory
	// snapshots and the local-asset ledger. Empty means
	// ~/.photosync/state.db.
	StateDBPath string `env:"PHOTOSYNC_STATE_DB"`

	// LibraryDir is the local media library to enumerate for new assets.
	LibraryDir string `env:"PHOTOSYNC_LIBRARY_DIR"`

	// ScanInterval is how often the background tick triggers an
	// auto-upload reconciliation pass.
	ScanInterval time.Duration `env:"PHOTOSYNC_SCAN_INTERVAL" envDefault:"15m"`

	// FileNameMask controls candidate file naming for queued uploads.
	// Tokens yyyy MM dd HH mm ss are substituted from the asset's
	// creation date. Empty selects the default mask.
	FileNameMask string `env:"PHOTOSYNC_FILENAME_MASK"`

	// FileNameOriginal keeps the asset's original file name instead of
	// applying the mask.
	FileNameOriginal bool `env:"PHOTOSYNC_FILENAME_ORIGINAL" envDefault:"false"`

	// FormatCompatibility enables the HEIC-to-jpg name normalization used
	// when probing whether an asset already exists remotely. Backends in
	// compatibility mode transcode HEIC on upload, so the remote name
	// differs from the local one.
	FormatCompatibility bool `env:"PHOTOSYNC_FORMAT_COMPATIBILITY" envDefault:"true"`

	// NotifyEnabled subscribes to the server's change-notify feed so
	// folder refreshes happen on push rather than only on demand.
	NotifyEnabled bool `env:"PHOTOSYNC_NOTIFY" envDefault:"false"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StateDBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for state db: %w", err)
		}

		cfg.StateDBPath = filepath.Join(home, ".photosync", "state.db")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AccountsFile == "" {
		return fmt.Errorf("PHOTOSYNC_ACCOUNTS_FILE must not be empty")
	}

	if c.ScanInterval < time.Minute {
		return fmt.Errorf("PHOTOSYNC_SCAN_INTERVAL must be at least 1m, got %s", c.ScanInterval)
	}

	return nil
}
