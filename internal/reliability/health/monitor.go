package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/storage"
	"github.com/vietddude/marketsync/internal/reliability/failure"
)

// Monitor computes per-series health from queue depth, failure counts and
// the latest quality score.
type Monitor struct {
	thresholds Thresholds
	specs      []domain.SeriesSpec
	tasks      storage.TaskRepository
	quality    storage.QualityRepository
	tracker    *failure.Tracker

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport map[string]SeriesHealth
}

// NewMonitor creates a health monitor over the registered series.
func NewMonitor(
	thresholds Thresholds,
	specs []domain.SeriesSpec,
	tasks storage.TaskRepository,
	quality storage.QualityRepository,
	tracker *failure.Tracker,
) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		specs:      specs,
		tasks:      tasks,
		quality:    quality,
		tracker:    tracker,
		lastReport: make(map[string]SeriesHealth),
	}
}

// CheckHealth reports health for every series. Results are cached briefly so
// scrapes do not hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]SeriesHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.thresholds.CheckCacheWindow && len(m.lastReport) > 0 {
		return m.lastReport
	}

	failures := make(map[string]int)
	for _, rec := range m.tracker.Snapshot() {
		failures[rec.Key] = rec.ConsecutiveCount
	}

	report := make(map[string]SeriesHealth)
	for _, spec := range m.specs {
		h := SeriesHealth{
			SeriesKey:           string(spec.Key),
			Status:              StatusHealthy,
			ConsecutiveFailures: failures[string(spec.Key)],
			QualityScore:        1,
		}

		if pending, err := m.tasks.CountByStatus(ctx, spec.Key, domain.TaskStatusPending); err == nil {
			h.PendingTasks = pending
		}
		if failed, err := m.tasks.CountByStatus(ctx, spec.Key, domain.TaskStatusFailed); err == nil {
			h.FailedTasks = failed
		}
		if latest, err := m.quality.Latest(ctx, spec.Key); err == nil && latest != nil {
			h.QualityScore = latest.QualityScore
			h.QualityCheckedAt = latest.CheckTime.Format(time.RFC3339)
		}

		h.Status = m.rollup(h)
		report[string(spec.Key)] = h
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) rollup(h SeriesHealth) Status {
	t := m.thresholds
	switch {
	case h.FailedTasks >= t.CriticalFailed,
		h.PendingTasks >= t.CriticalPending,
		h.ConsecutiveFailures >= m.tracker.Threshold():
		return StatusCritical
	case h.PendingTasks >= t.DegradedPending,
		h.QualityScore < t.QualityFloor:
		return StatusDegraded
	}
	return StatusHealthy
}
