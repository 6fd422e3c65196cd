// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvDatabase         = "REGEINDARY_DATABASE"
	EnvMatchBatchSize   = "REGEINDARY_MATCH_BATCH_SIZE"
	EnvProgressEvery    = "REGEINDARY_PROGRESS_EVERY"
	EnvProgressInterval = "REGEINDARY_PROGRESS_INTERVAL"
	EnvCreateOrphans    = "REGEINDARY_CREATE_ORPHANS"
)

// DefaultEnvFile is loaded by Load when present.
const DefaultEnvFile = ".env"

// ErrNoDatabase is returned by RequireDatabase when no DSN is configured.
var ErrNoDatabase = errors.New(EnvDatabase + " environment variable is not set")

type Config struct {
	// DatabaseURL is a SQLite path or file: URI, or a postgres:// URL.
	DatabaseURL      string
	MatchBatchSize   int
	ProgressEvery    int
	ProgressInterval time.Duration
	CreateOrphans    bool
}

// Load reads envFile into the environment, without overriding variables
// already set, and then calls New. A missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return New()
}

// New builds a Config from the environment.
func New() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv(EnvDatabase),
		MatchBatchSize:   1000,
		ProgressEvery:    100,
		ProgressInterval: 5 * time.Minute,
	}

	var err error
	cfg.MatchBatchSize, err = getEnvAsInt(EnvMatchBatchSize, cfg.MatchBatchSize)
	if err != nil {
		return nil, err
	}

	cfg.ProgressEvery, err = getEnvAsInt(EnvProgressEvery, cfg.ProgressEvery)
	if err != nil {
		return nil, err
	}

	cfg.ProgressInterval, err = getEnvAsDuration(EnvProgressInterval, cfg.ProgressInterval)
	if err != nil {
		return nil, err
	}

	cfg.CreateOrphans, err = getEnvAsBool(EnvCreateOrphans, cfg.CreateOrphans)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireDatabase fails when no DSN is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrNoDatabase
	}
	return nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid value for %s: must be positive, got %d", key, value)
	}

	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected a duration, got '%s'", key, valueStr)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid value for %s: must be positive, got %s", key, value)
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: expected a boolean, got '%s'", key, valueStr)
	}

	return value, nil
}
