package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/marketsync/internal/infra/redis"
	"github.com/vietddude/marketsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Sources  []SourceConfig     `yaml:"sources"`
	Series   []SeriesConfig     `yaml:"series"`
	Quality  QualityConfig      `yaml:"quality"`
	Backfill BackfillConfig     `yaml:"backfill"`
	Failure  FailureConfig      `yaml:"failure"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SourceConfig holds settings for one upstream market-data API.
type SourceConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SeriesConfig registers one series the engine guards.
type SeriesConfig struct {
	Key      string        `yaml:"key"`      // source:symbol:kind:timeframe
	Source   string        `yaml:"source"`   // must match a sources entry
	Interval time.Duration `yaml:"interval"` // expected sampling interval
}

// QualityConfig holds quality check settings.
type QualityConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval"`     // cadence of full checks
	Lookback          time.Duration `yaml:"lookback"`
	ScoreFloor        float64       `yaml:"score_floor"`
	MaxPrice          string        `yaml:"max_price"`          // decimal string, empty disables
	TrailingExclusion time.Duration `yaml:"trailing_exclusion"` // 0 = one interval per series
}

// BackfillConfig holds scheduler settings.
type BackfillConfig struct {
	Workers       int           `yaml:"workers"`
	ClaimBatch    int           `yaml:"claim_batch"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	LeaseTimeout  time.Duration `yaml:"lease_timeout"` // reclaim running tasks idle this long
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig holds the per-task fetch retry policy.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Jitter        bool          `yaml:"jitter"`
}

// FailureConfig holds alert thresholds.
type FailureConfig struct {
	Threshold int `yaml:"threshold"` // consecutive failures before alerting
}

// Validate fails fast on missing or inconsistent fields so a bad deploy
// dies at startup instead of at 3am.
func (c *AppConfig) Validate() error {
	if len(c.Series) == 0 {
		return fmt.Errorf("config: at least one series must be registered")
	}

	sources := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("config: sources[%d] missing name", i)
		}
		if s.URL == "" {
			return fmt.Errorf("config: source %q missing url", s.Name)
		}
		if sources[s.Name] {
			return fmt.Errorf("config: duplicate source %q", s.Name)
		}
		sources[s.Name] = true
	}

	seen := make(map[string]bool, len(c.Series))
	for i, s := range c.Series {
		if s.Key == "" {
			return fmt.Errorf("config: series[%d] missing key", i)
		}
		if seen[s.Key] {
			return fmt.Errorf("config: duplicate series %q", s.Key)
		}
		seen[s.Key] = true
		if s.Interval <= 0 {
			return fmt.Errorf("config: series %q needs a positive interval", s.Key)
		}
		if !sources[s.Source] {
			return fmt.Errorf("config: series %q references unknown source %q", s.Key, s.Source)
		}
	}

	if c.Quality.ScoreFloor < 0 || c.Quality.ScoreFloor > 1 {
		return fmt.Errorf("config: quality.score_floor must be in [0, 1], got %v", c.Quality.ScoreFloor)
	}
	if c.Backfill.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: backfill.retry.max_retries must be >= 0")
	}
	return nil
}
