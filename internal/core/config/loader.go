package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Environment variables in the
// file body are expanded before parsing, so secrets stay out of the file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Quality.CheckInterval == 0 {
		cfg.Quality.CheckInterval = 10 * time.Minute
	}
	if cfg.Quality.Lookback == 0 {
		cfg.Quality.Lookback = 24 * time.Hour
	}
	if cfg.Quality.ScoreFloor == 0 {
		cfg.Quality.ScoreFloor = 0.95
	}
	if cfg.Backfill.Workers == 0 {
		cfg.Backfill.Workers = 4
	}
	if cfg.Backfill.ClaimBatch == 0 {
		cfg.Backfill.ClaimBatch = 8
	}
	if cfg.Backfill.DrainInterval == 0 {
		cfg.Backfill.DrainInterval = 30 * time.Second
	}
	if cfg.Backfill.LeaseTimeout == 0 {
		cfg.Backfill.LeaseTimeout = 10 * time.Minute
	}
	if cfg.Backfill.Retry.MaxRetries == 0 && cfg.Backfill.Retry.InitialDelay == 0 {
		cfg.Backfill.Retry = RetryConfig{
			MaxRetries:    5,
			InitialDelay:  1 * time.Second,
			BackoffFactor: 2.0,
			MaxDelay:      60 * time.Second,
			Jitter:        true,
		}
	}
	if cfg.Failure.Threshold == 0 {
		cfg.Failure.Threshold = 5
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Timeout == 0 {
			cfg.Sources[i].Timeout = 10 * time.Second
		}
	}
}
