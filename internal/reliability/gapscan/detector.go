// Package gapscan finds missing sub-ranges in a stored time series.
//
// Detection is store-only: the expected sampling grid is compared against the
// timestamps already persisted, so a scan costs zero upstream calls. Fetching
// happens later, when the backfill scheduler executes the resulting tasks.
package gapscan

import (
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// Config controls one scan.
type Config struct {
	// Interval is the expected sampling interval of the series.
	Interval time.Duration

	// TrailingExclusion is how much of the most recent window to skip. The
	// newest sample may simply not exist yet; flagging it as a gap would
	// flood the queue with tasks for data the upstream has not produced.
	// Named policy, not an artifact: set to zero to scan up to windowEnd.
	TrailingExclusion time.Duration
}

// DefaultConfig excludes one trailing interval.
func DefaultConfig(interval time.Duration) Config {
	return Config{Interval: interval, TrailingExclusion: interval}
}

// Report is the outcome of one scan.
type Report struct {
	Gaps          []domain.TimeRange
	ExpectedCount int
	MissingCount  int
}

// MissingRatio returns MissingCount / ExpectedCount, 0 for an empty grid.
func (r Report) MissingRatio() float64 {
	if r.ExpectedCount == 0 {
		return 0
	}
	return float64(r.MissingCount) / float64(r.ExpectedCount)
}

// Find walks the expected grid windowStart, windowStart+interval, ... up to
// windowEnd (minus the trailing exclusion) and merge-walks it against the
// stored timestamps, which must be sorted ascending. Consecutive missing
// points coalesce into one gap [firstMissing, lastMissing+interval).
func Find(cfg Config, windowStart, windowEnd time.Time, actual []time.Time) Report {
	report := Report{}
	if cfg.Interval <= 0 {
		return report
	}

	effectiveEnd := windowEnd.Add(-cfg.TrailingExclusion)

	var gapStart time.Time
	inGap := false
	j := 0

	for t := windowStart; t.Before(effectiveEnd); t = t.Add(cfg.Interval) {
		report.ExpectedCount++

		// Advance past stored stamps before the grid point. Off-grid stamps
		// are ignored here; the quality validators flag them separately.
		for j < len(actual) && actual[j].Before(t) {
			j++
		}
		present := j < len(actual) && actual[j].Equal(t)

		if present {
			if inGap {
				report.Gaps = append(report.Gaps, domain.TimeRange{Start: gapStart, End: t})
				inGap = false
			}
			j++
			continue
		}

		report.MissingCount++
		if !inGap {
			gapStart = t
			inGap = true
		}
	}

	if inGap {
		// Last run extends to the end of its final missing slot.
		last := windowStart.Add(time.Duration(report.ExpectedCount-1) * cfg.Interval)
		report.Gaps = append(report.Gaps, domain.TimeRange{Start: gapStart, End: last.Add(cfg.Interval)})
	}

	return report
}
