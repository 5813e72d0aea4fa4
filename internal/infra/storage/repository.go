package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// ErrStorage marks persistence-layer failures so the retry layer can tell
// them apart from upstream fetch errors.
var ErrStorage = errors.New("storage failure")

// TaskRepository is the durable backfill task queue.
type TaskRepository interface {
	// Enqueue inserts a task or returns the id of the existing row with the
	// same (series_key, range_start, range_end). An existing failed or
	// completed row for the identical range is reset to pending: if the gap
	// is being re-detected, the work evidently still needs doing.
	Enqueue(ctx context.Context, task *domain.BackfillTask) (string, error)

	// ClaimPending atomically transitions up to limit pending tasks to
	// running and returns them, ordered by priority then age. Safe across
	// concurrent scheduler instances: no task is returned to two callers.
	ClaimPending(ctx context.Context, limit int) ([]*domain.BackfillTask, error)

	// UpdateStatus transitions a task. actualRecords may be nil; errMsg is
	// stored verbatim for failed tasks.
	UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, actualRecords *int, errMsg string) error

	// ReclaimStale resets running tasks whose last transition is older than
	// olderThan back to pending and returns how many were reset. Recovers
	// tasks claimed by a scheduler that died before finishing them.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)

	// Pending returns up to limit pending tasks without claiming them.
	Pending(ctx context.Context, limit int) ([]*domain.BackfillTask, error)

	// CountByStatus counts tasks for a series in the given status.
	// An empty series key counts across all series.
	CountByStatus(ctx context.Context, key domain.SeriesKey, status domain.TaskStatus) (int, error)
}

// QualityRepository stores append-only quality check history.
type QualityRepository interface {
	Insert(ctx context.Context, summary *domain.QualitySummary) error

	// Latest returns the most recent summary for a series, or nil.
	Latest(ctx context.Context, key domain.SeriesKey) (*domain.QualitySummary, error)
}

// SeriesRepository is the candle store the engine guards.
type SeriesRepository interface {
	// StoredTimestamps returns the sorted timestamps present in [start, end).
	StoredTimestamps(ctx context.Context, key domain.SeriesKey, start, end time.Time) ([]time.Time, error)

	// Candles returns the stored samples in [start, end), timestamp ascending.
	Candles(ctx context.Context, key domain.SeriesKey, start, end time.Time) ([]domain.Candle, error)

	// UpsertBatch writes candles keyed on (series_key, timestamp). Re-writing
	// identical rows is a no-op that still reports a deterministic count.
	UpsertBatch(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) (int, error)
}

// ErrorLogRepository records failed fetch attempts.
type ErrorLogRepository interface {
	Record(ctx context.Context, apiErr *domain.APIError) error
}
