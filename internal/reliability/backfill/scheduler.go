package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/source"
	"github.com/vietddude/marketsync/internal/infra/storage"
	"github.com/vietddude/marketsync/internal/reliability/classify"
	"github.com/vietddude/marketsync/internal/reliability/failure"
	"github.com/vietddude/marketsync/internal/reliability/metrics"
	"github.com/vietddude/marketsync/internal/reliability/retry"
)

// Scheduler owns the backfill task lifecycle: enqueue, claim, execute.
type Scheduler struct {
	cfg      Config
	tasks    storage.TaskRepository
	series   storage.SeriesRepository
	errorLog storage.ErrorLogRepository
	fetchers source.Fetchers
	specs    map[domain.SeriesKey]domain.SeriesSpec
	tracker  *failure.Tracker
	log      *slog.Logger
}

// NewScheduler creates a scheduler. specs maps every registered series to its
// spec; tasks for unregistered series fail without retry.
func NewScheduler(
	cfg Config,
	tasks storage.TaskRepository,
	series storage.SeriesRepository,
	errorLog storage.ErrorLogRepository,
	fetchers source.Fetchers,
	specs map[domain.SeriesKey]domain.SeriesSpec,
	tracker *failure.Tracker,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		tasks:    tasks,
		series:   series,
		errorLog: errorLog,
		fetchers: fetchers,
		specs:    specs,
		tracker:  tracker,
		log:      slog.Default().With("component", "backfill"),
	}
}

// Enqueue files a backfill task for [start, end). Idempotent: an existing
// task for the identical range is reused (see storage.TaskRepository).
func (s *Scheduler) Enqueue(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
	priority int,
	expectedRecords *int,
) (string, error) {
	if !start.Before(end) {
		return "", fmt.Errorf("invalid range %s >= %s", start, end)
	}

	id, err := s.tasks.Enqueue(ctx, &domain.BackfillTask{
		SeriesKey:       key,
		RangeStart:      start,
		RangeEnd:        end,
		Priority:        priority,
		ExpectedRecords: expectedRecords,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue backfill for %s: %w", key, err)
	}
	return id, nil
}

// ClaimPending atomically claims up to limit tasks for execution.
func (s *Scheduler) ClaimPending(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	start := time.Now()
	tasks, err := s.tasks.ClaimPending(ctx, limit)
	metrics.ClaimLatency.Observe(time.Since(start).Seconds())
	return tasks, err
}

// PendingTasks returns queued tasks without claiming them.
func (s *Scheduler) PendingTasks(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	return s.tasks.Pending(ctx, limit)
}

// ExecuteTask fetches the task's range with retries and upserts the result.
// A task failure is absorbed into task state; the returned error is only for
// infrastructure problems (status writes failing).
func (s *Scheduler) ExecuteTask(ctx context.Context, task *domain.BackfillTask) error {
	spec, ok := s.specs[task.SeriesKey]
	if !ok {
		return s.markFailed(ctx, task, fmt.Sprintf("series %s not registered", task.SeriesKey))
	}
	fetcher, err := s.fetchers.ForSource(spec.Source)
	if err != nil {
		return s.markFailed(ctx, task, err.Error())
	}

	hook := s.attemptHook(spec, task)
	candles, err := retry.ExecuteValue(ctx, func() ([]domain.Candle, error) {
		metrics.FetchAttemptsTotal.WithLabelValues(spec.Source).Inc()
		return fetcher.Fetch(ctx, task.SeriesKey, task.RangeStart, task.RangeEnd)
	}, s.cfg.Retry, hook)
	if err != nil {
		count := s.tracker.RecordFailure(string(task.SeriesKey))
		metrics.ConsecutiveFailures.WithLabelValues(string(task.SeriesKey)).Set(float64(count))
		return s.markFailed(ctx, task, truncate(err.Error(), 500))
	}

	written, err := s.series.UpsertBatch(ctx, task.SeriesKey, candles)
	if err != nil {
		storeErr := fmt.Errorf("%w: %v", storage.ErrStorage, err)
		count := s.tracker.RecordFailure(string(task.SeriesKey))
		metrics.ConsecutiveFailures.WithLabelValues(string(task.SeriesKey)).Set(float64(count))
		return s.markFailed(ctx, task, truncate(storeErr.Error(), 500))
	}

	s.tracker.RecordSuccess(string(task.SeriesKey))
	metrics.ConsecutiveFailures.WithLabelValues(string(task.SeriesKey)).Set(0)
	metrics.TasksProcessed.WithLabelValues(string(task.SeriesKey)).Inc()

	actual := len(candles)
	if err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted, &actual, ""); err != nil {
		return fmt.Errorf("failed to mark task %s completed: %w", task.ID, err)
	}

	s.log.Info("Backfill task completed",
		"series", task.SeriesKey, "range", task.Range().String(),
		"fetched", actual, "written", written)
	return nil
}

func (s *Scheduler) attemptHook(spec domain.SeriesSpec, task *domain.BackfillTask) retry.AttemptHook {
	return func(attempt int, kind classify.ErrorKind, err error) {
		metrics.FetchErrorsTotal.WithLabelValues(spec.Source, string(kind)).Inc()
		logErr := s.errorLog.Record(context.Background(), &domain.APIError{
			Source:       spec.Source,
			Operation:    "backfill:" + string(task.SeriesKey),
			ErrorKind:    string(kind),
			ErrorMessage: truncate(err.Error(), 500),
			OccurredAt:   time.Now().UTC(),
		})
		if logErr != nil {
			s.log.Warn("Failed to record api error", "error", logErr)
		}
		s.log.Debug("Fetch attempt failed",
			"series", task.SeriesKey, "attempt", attempt, "kind", kind, "error", err)
	}
}

func (s *Scheduler) markFailed(ctx context.Context, task *domain.BackfillTask, msg string) error {
	metrics.TasksFailed.WithLabelValues(string(task.SeriesKey)).Inc()
	if err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusFailed, nil, msg); err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", task.ID, err)
	}
	s.log.Warn("Backfill task failed",
		"series", task.SeriesKey, "range", task.Range().String(), "error", msg)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
