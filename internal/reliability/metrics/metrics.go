package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttemptsTotal tracks fetch attempts per source
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_fetch_attempts_total",
			Help: "Total number of upstream fetch attempts",
		},
		[]string{"source"},
	)

	// FetchErrorsTotal tracks fetch failures per source and error kind
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_fetch_errors_total",
			Help: "Total number of failed fetch attempts",
		},
		[]string{"source", "kind"},
	)

	// TasksProcessed tracks completed backfill tasks per series
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_backfill_tasks_processed_total",
			Help: "Total number of backfill tasks completed",
		},
		[]string{"series"},
	)

	// TasksFailed tracks failed backfill tasks per series
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_backfill_tasks_failed_total",
			Help: "Total number of backfill tasks that exhausted retries",
		},
		[]string{"series"},
	)

	// QueueDepth tracks pending backfill tasks
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketsync_backfill_queue_depth",
			Help: "Number of pending backfill tasks",
		},
	)

	// QualityScore tracks the latest quality score per series
	QualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_quality_score",
			Help: "Latest quality score of a series (0 to 1)",
		},
		[]string{"series"},
	)

	// GapsDetected tracks gaps found by quality checks
	GapsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsync_gaps_detected_total",
			Help: "Total number of gaps detected in stored series",
		},
		[]string{"series"},
	)

	// ConsecutiveFailures tracks the failure-tracker count per key
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsync_consecutive_failures",
			Help: "Current consecutive failure count per series",
		},
		[]string{"series"},
	)

	// ClaimLatency tracks how long queue claims take
	ClaimLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketsync_claim_latency_seconds",
			Help:    "Latency of backfill queue claim operations",
			Buckets: prometheus.DefBuckets,
		},
	)
)
