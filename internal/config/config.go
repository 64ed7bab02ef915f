// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the data layer.
type Config struct {
	DatabasePath string
	APIBaseURL   string
	LogLevel     string
	SyncTimeout  time.Duration
	SyncPageSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: os.Getenv("POCKETLEDGER_DB_PATH"),
		APIBaseURL:   os.Getenv("POCKETLEDGER_API_BASE_URL"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}

	if cfg.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory for default db path: %w", err)
		}
		cfg.DatabasePath = filepath.Join(home, ".local", "share", "pocketledger", "pocketledger.db")
	}

	cfg.SyncTimeout = 30 * time.Second
	if s := os.Getenv("SYNC_TIMEOUT_SECONDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.SyncTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.SyncPageSize = 200
	if s := os.Getenv("SYNC_PAGE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.SyncPageSize = n
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that the configuration is usable. The API base URL is
// optional: without it the store runs fully offline and sync is disabled.
func (c *Config) validate() error {
	var errs []string

	if c.DatabasePath == "" {
		errs = append(errs, "POCKETLEDGER_DB_PATH is required")
	}

	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		errs = append(errs, "POCKETLEDGER_API_BASE_URL must be an http(s) URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
