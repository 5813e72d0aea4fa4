// Package health aggregates per-series health and serves it over HTTP.
package health

import "time"

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// SeriesHealth is the health snapshot of one series.
type SeriesHealth struct {
	SeriesKey           string  `json:"series_key"`
	Status              Status  `json:"status"`
	PendingTasks        int     `json:"pending_tasks"`
	FailedTasks         int     `json:"failed_tasks"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	QualityScore        float64 `json:"quality_score"`
	QualityCheckedAt    string  `json:"quality_checked_at,omitempty"`
}

// Thresholds controls the status rollup.
type Thresholds struct {
	DegradedPending  int
	CriticalPending  int
	CriticalFailed   int
	QualityFloor     float64
	CheckCacheWindow time.Duration
}

// DefaultThresholds matches the alerting posture of the quality checker.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedPending:  1,
		CriticalPending:  50,
		CriticalFailed:   10,
		QualityFloor:     0.95,
		CheckCacheWindow: 10 * time.Second,
	}
}
