// Package quality scores the completeness and cleanliness of stored series
// and files backfill tasks for every gap it finds.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/storage"
	"github.com/vietddude/marketsync/internal/reliability/gapscan"
	"github.com/vietddude/marketsync/internal/reliability/metrics"
)

// Enqueuer files backfill work. Satisfied by the backfill scheduler.
type Enqueuer interface {
	Enqueue(ctx context.Context, key domain.SeriesKey, start, end time.Time, priority int, expectedRecords *int) (string, error)
}

// Config controls quality checks.
type Config struct {
	Lookback   time.Duration   // Check window size
	ScoreFloor float64         // Scores below this raise an alert signal
	MaxPrice   decimal.Decimal // Upper sanity bound for prices, zero disables
	// RecentGapSlots marks gaps ending within this many intervals of the
	// window end as recent, which raises their backfill priority.
	RecentGapSlots int
	// TrailingExclusion overrides how much of the newest window the gap scan
	// skips. Zero keeps the per-series default of one interval.
	TrailingExclusion time.Duration
}

// DefaultConfig returns a 24h lookback with a 0.95 alert floor.
func DefaultConfig() Config {
	return Config{
		Lookback:       24 * time.Hour,
		ScoreFloor:     0.95,
		RecentGapSlots: 10,
	}
}

// Checker orchestrates gap scans and validators over registered series.
type Checker struct {
	cfg       Config
	series    storage.SeriesRepository
	summaries storage.QualityRepository
	enqueuer  Enqueuer
	specs     []domain.SeriesSpec
	log       *slog.Logger
	now       func() time.Time
}

// NewChecker creates a quality checker over the registered series set.
func NewChecker(
	cfg Config,
	series storage.SeriesRepository,
	summaries storage.QualityRepository,
	enqueuer Enqueuer,
	specs []domain.SeriesSpec,
) *Checker {
	return &Checker{
		cfg:       cfg,
		series:    series,
		summaries: summaries,
		enqueuer:  enqueuer,
		specs:     specs,
		log:       slog.Default().With("component", "quality"),
		now:       time.Now,
	}
}

// CheckSeries runs one quality pass over the lookback window: gap scan,
// validators, score, persist, and one backfill task per gap.
func (c *Checker) CheckSeries(ctx context.Context, spec domain.SeriesSpec) (*domain.QualitySummary, error) {
	now := c.now().UTC()
	windowEnd := now.Truncate(spec.Interval)
	windowStart := windowEnd.Add(-c.cfg.Lookback).Truncate(spec.Interval)

	stamps, err := c.series.StoredTimestamps(ctx, spec.Key, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load timestamps for %s: %w", spec.Key, err)
	}
	candles, err := c.series.Candles(ctx, spec.Key, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles for %s: %w", spec.Key, err)
	}

	scanCfg := gapscan.DefaultConfig(spec.Interval)
	if c.cfg.TrailingExclusion > 0 {
		scanCfg.TrailingExclusion = c.cfg.TrailingExclusion
	}
	report := gapscan.Find(scanCfg, windowStart, windowEnd, stamps)
	checks := validate(candles, c.cfg.MaxPrice)

	summary := &domain.QualitySummary{
		SeriesKey:       spec.Key,
		CheckTime:       now,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		ExpectedCount:   report.ExpectedCount,
		ActualCount:     len(stamps),
		MissingCount:    report.MissingCount,
		OutOfOrderCount: checks.OutOfOrder,
		DuplicateCount:  checks.Duplicates,
		QualityScore:    score(report, checks),
	}

	if err := c.summaries.Insert(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to persist quality summary for %s: %w", spec.Key, err)
	}
	metrics.QualityScore.WithLabelValues(string(spec.Key)).Set(summary.QualityScore)

	if checks.ValueViolations > 0 {
		// Not part of the score; silent data corruption still must be visible.
		c.log.Warn("Value sanity violations found",
			"series", spec.Key, "count", checks.ValueViolations)
	}

	c.enqueueGaps(ctx, spec, windowEnd, report)

	return summary, nil
}

// CheckAll checks every registered series, isolating per-series failures so
// one broken series cannot abort the batch.
func (c *Checker) CheckAll(ctx context.Context) []*domain.QualitySummary {
	summaries := make([]*domain.QualitySummary, 0, len(c.specs))
	for _, spec := range c.specs {
		summary, err := c.CheckSeries(ctx, spec)
		if err != nil {
			c.log.Error("Quality check failed", "series", spec.Key, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// BelowFloor reports whether a summary breaches the configured score floor.
func (c *Checker) BelowFloor(summary *domain.QualitySummary) bool {
	return summary.QualityScore < c.cfg.ScoreFloor
}

func (c *Checker) enqueueGaps(
	ctx context.Context,
	spec domain.SeriesSpec,
	windowEnd time.Time,
	report gapscan.Report,
) {
	recentCutoff := windowEnd.Add(-time.Duration(c.cfg.RecentGapSlots) * spec.Interval)

	for _, gap := range report.Gaps {
		metrics.GapsDetected.WithLabelValues(string(spec.Key)).Inc()

		priority := domain.PriorityHistorical
		if gap.End.After(recentCutoff) {
			priority = domain.PriorityRecent
		}
		expected := int(gap.End.Sub(gap.Start) / spec.Interval)

		id, err := c.enqueuer.Enqueue(ctx, spec.Key, gap.Start, gap.End, priority, &expected)
		if err != nil {
			c.log.Error("Failed to enqueue backfill",
				"series", spec.Key, "gap", gap.String(), "error", err)
			continue
		}
		c.log.Info("Gap queued for backfill",
			"series", spec.Key, "gap", gap.String(), "task", id, "expected", expected)
	}
}

// score = 1 - (missing + outOfOrder + duplicates) / max(expected, 1),
// clamped to [0, 1].
func score(report gapscan.Report, checks validationResult) float64 {
	expected := report.ExpectedCount
	if expected < 1 {
		expected = 1
	}
	defects := report.MissingCount + checks.OutOfOrder + checks.Duplicates
	s := 1 - float64(defects)/float64(expected)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
