// Package config loads runtime configuration from an optional YAML file with
// environment-variable overrides. Flags on the CLI take precedence over both.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage selects the destination backend.
type Storage struct {
	// Kind is a registered backend kind: postgres, sqlite, mssql, mongodb.
	Kind string `yaml:"kind" env:"CHATDB_BACKEND" env-default:"sqlite"`
	// DSN is the backend connection string.
	DSN string `yaml:"dsn" env:"CHATDB_DSN" env-default:"file:chatdb.db"`
	// Database names the document-store database; relational backends
	// ignore it.
	Database string `yaml:"database" env:"CHATDB_DATABASE" env-default:"chatdb"`
}

// Import tunes the load path.
type Import struct {
	BatchSize int `yaml:"batch_size" env:"CHATDB_BATCH_SIZE" env-default:"5000"`
}

// Metrics configures telemetry. Disabled means the no-op backend.
type Metrics struct {
	Enabled      bool   `yaml:"enabled" env:"CHATDB_METRICS_ENABLED" env-default:"false"`
	JobName      string `yaml:"job_name" env:"CHATDB_METRICS_JOB" env-default:"chatdb"`
	Tags         string `yaml:"tags" env:"CHATDB_METRICS_TAGS"`
	FlushSeconds int    `yaml:"flush_seconds" env:"CHATDB_METRICS_FLUSH_SECONDS" env-default:"60"`
}

// Logging configures the zap logger.
type Logging struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" env:"CHATDB_LOG_LEVEL" env-default:"info"`
	// Format is "console" or "json".
	Format string `yaml:"format" env:"CHATDB_LOG_FORMAT" env-default:"console"`
}

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Import  Import  `yaml:"import"`
	Metrics Metrics `yaml:"metrics"`
	Logging Logging `yaml:"logging"`
}

// Load reads the YAML file at path when path is non-empty, then applies
// environment overrides. An empty path reads the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Import.BatchSize <= 0 {
		return nil, fmt.Errorf("config: batch_size must be positive, got %d", cfg.Import.BatchSize)
	}
	return &cfg, nil
}
