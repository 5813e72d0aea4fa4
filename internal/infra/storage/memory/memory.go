// Package memory provides in-memory repository implementations for tests
// and database-less dev mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/marketsync/internal/core/domain"
)

type Storage struct {
	mu        sync.RWMutex
	tasks     []*domain.BackfillTask
	summaries []*domain.QualitySummary
	candles   map[domain.SeriesKey]map[int64]domain.Candle // keyed by unix ms
	errorLog  []*domain.APIError
}

func NewStorage() *Storage {
	return &Storage{
		candles: make(map[domain.SeriesKey]map[int64]domain.Candle),
	}
}

// -----------------------------------------------------------------------------
// Task Repository
// -----------------------------------------------------------------------------

type TaskRepo struct {
	store *Storage
}

func NewTaskRepo(store *Storage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) Enqueue(ctx context.Context, task *domain.BackfillTask) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.tasks {
		if existing.SeriesKey == task.SeriesKey &&
			existing.RangeStart.Equal(task.RangeStart) &&
			existing.RangeEnd.Equal(task.RangeEnd) {
			if existing.Status == domain.TaskStatusFailed ||
				existing.Status == domain.TaskStatusCompleted {
				existing.Status = domain.TaskStatusPending
				existing.ErrorMessage = ""
				existing.ActualRecords = nil
				existing.UpdatedAt = time.Now().UTC()
			}
			return existing.ID, nil
		}
	}

	now := time.Now().UTC()
	stored := *task
	stored.ID = uuid.New().String()
	stored.Status = domain.TaskStatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.store.tasks = append(r.store.tasks, &stored)
	return stored.ID, nil
}

func (r *TaskRepo) ClaimPending(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	pending := make([]*domain.BackfillTask, 0)
	for _, t := range r.store.tasks {
		if t.Status == domain.TaskStatusPending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*domain.BackfillTask, 0, len(pending))
	for _, t := range pending {
		t.Status = domain.TaskStatusRunning
		t.UpdatedAt = time.Now().UTC()
		cp := *t
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *TaskRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.TaskStatus,
	actualRecords *int,
	errMsg string,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range r.store.tasks {
		if t.ID == id {
			t.Status = status
			t.ErrorMessage = errMsg
			if actualRecords != nil {
				t.ActualRecords = actualRecords
			}
			t.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (r *TaskRepo) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	count := 0
	for _, t := range r.store.tasks {
		if t.Status == domain.TaskStatusRunning && t.UpdatedAt.Before(cutoff) {
			t.Status = domain.TaskStatusPending
			t.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (r *TaskRepo) Pending(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.BackfillTask, 0)
	for _, t := range r.store.tasks {
		if t.Status == domain.TaskStatusPending {
			cp := *t
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *TaskRepo) CountByStatus(
	ctx context.Context,
	key domain.SeriesKey,
	status domain.TaskStatus,
) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, t := range r.store.tasks {
		if t.Status == status && (key == "" || t.SeriesKey == key) {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Quality Repository
// -----------------------------------------------------------------------------

type QualityRepo struct {
	store *Storage
}

func NewQualityRepo(store *Storage) *QualityRepo {
	return &QualityRepo{store: store}
}

func (r *QualityRepo) Insert(ctx context.Context, summary *domain.QualitySummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *summary
	r.store.summaries = append(r.store.summaries, &cp)
	return nil
}

func (r *QualityRepo) Latest(ctx context.Context, key domain.SeriesKey) (*domain.QualitySummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *domain.QualitySummary
	for _, s := range r.store.summaries {
		if s.SeriesKey != key {
			continue
		}
		if latest == nil || s.CheckTime.After(latest.CheckTime) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// -----------------------------------------------------------------------------
// Series Repository
// -----------------------------------------------------------------------------

type SeriesRepo struct {
	store *Storage
}

func NewSeriesRepo(store *Storage) *SeriesRepo {
	return &SeriesRepo{store: store}
}

func (r *SeriesRepo) StoredTimestamps(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
) ([]time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]time.Time, 0)
	for ms := range r.store.candles[key] {
		ts := time.UnixMilli(ms).UTC()
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *SeriesRepo) Candles(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
) ([]domain.Candle, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]domain.Candle, 0)
	for ms, c := range r.store.candles[key] {
		ts := time.UnixMilli(ms).UTC()
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *SeriesRepo) UpsertBatch(
	ctx context.Context,
	key domain.SeriesKey,
	candles []domain.Candle,
) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.candles[key] == nil {
		r.store.candles[key] = make(map[int64]domain.Candle)
	}
	for _, c := range candles {
		r.store.candles[key][c.Timestamp.UnixMilli()] = c
	}
	return len(candles), nil
}

// -----------------------------------------------------------------------------
// Error Log Repository
// -----------------------------------------------------------------------------

type ErrorLogRepo struct {
	store *Storage
}

func NewErrorLogRepo(store *Storage) *ErrorLogRepo {
	return &ErrorLogRepo{store: store}
}

func (r *ErrorLogRepo) Record(ctx context.Context, apiErr *domain.APIError) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *apiErr
	r.store.errorLog = append(r.store.errorLog, &cp)
	return nil
}

// Errors returns a copy of the recorded error log, oldest first.
func (s *Storage) Errors() []*domain.APIError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.APIError, len(s.errorLog))
	copy(out, s.errorLog)
	return out
}
