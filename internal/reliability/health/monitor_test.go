package health

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/storage/memory"
	"github.com/vietddude/marketsync/internal/reliability/failure"
)

const testKey = domain.SeriesKey("binance:BTCUSDT:candles:1m")

func testSpecs() []domain.SeriesSpec {
	return []domain.SeriesSpec{{Key: testKey, Interval: time.Minute, Source: "binance"}}
}

func newMonitor(store *memory.Storage, tracker *failure.Tracker, thresholds Thresholds) *Monitor {
	return NewMonitor(thresholds,
		testSpecs(), memory.NewTaskRepo(store), memory.NewQualityRepo(store), tracker)
}

func TestCheckHealth_HealthyByDefault(t *testing.T) {
	m := newMonitor(memory.NewStorage(), failure.New(5), DefaultThresholds())

	report := m.CheckHealth(context.Background())
	h, ok := report[string(testKey)]
	if !ok {
		t.Fatal("missing series in report")
	}
	if h.Status != StatusHealthy {
		t.Errorf("Status = %s, want healthy", h.Status)
	}
	if h.QualityScore != 1 {
		t.Errorf("QualityScore without history = %f, want 1", h.QualityScore)
	}
}

func TestCheckHealth_DegradedOnPendingBacklog(t *testing.T) {
	store := memory.NewStorage()
	taskRepo := memory.NewTaskRepo(store)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, _ = taskRepo.Enqueue(context.Background(), &domain.BackfillTask{
		SeriesKey:  testKey,
		RangeStart: start,
		RangeEnd:   start.Add(time.Minute),
		Priority:   domain.PriorityRecent,
	})

	m := newMonitor(store, failure.New(5), DefaultThresholds())
	h := m.CheckHealth(context.Background())[string(testKey)]
	if h.Status != StatusDegraded {
		t.Errorf("Status = %s, want degraded", h.Status)
	}
	if h.PendingTasks != 1 {
		t.Errorf("PendingTasks = %d, want 1", h.PendingTasks)
	}
}

func TestCheckHealth_DegradedOnLowQuality(t *testing.T) {
	store := memory.NewStorage()
	_ = memory.NewQualityRepo(store).Insert(context.Background(), &domain.QualitySummary{
		SeriesKey:    testKey,
		CheckTime:    time.Now().UTC(),
		QualityScore: 0.80,
	})

	m := newMonitor(store, failure.New(5), DefaultThresholds())
	h := m.CheckHealth(context.Background())[string(testKey)]
	if h.Status != StatusDegraded {
		t.Errorf("Status = %s, want degraded", h.Status)
	}
	if h.QualityScore != 0.80 {
		t.Errorf("QualityScore = %f, want 0.80", h.QualityScore)
	}
}

func TestCheckHealth_CriticalOnConsecutiveFailures(t *testing.T) {
	tracker := failure.New(3)
	for i := 0; i < 3; i++ {
		tracker.RecordFailure(string(testKey))
	}

	m := newMonitor(memory.NewStorage(), tracker, DefaultThresholds())
	h := m.CheckHealth(context.Background())[string(testKey)]
	if h.Status != StatusCritical {
		t.Errorf("Status = %s, want critical", h.Status)
	}
	if h.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", h.ConsecutiveFailures)
	}
}

func TestCheckHealth_CachesWithinWindow(t *testing.T) {
	store := memory.NewStorage()
	tracker := failure.New(5)
	thresholds := DefaultThresholds()
	thresholds.CheckCacheWindow = time.Hour

	m := newMonitor(store, tracker, thresholds)
	first := m.CheckHealth(context.Background())
	if first[string(testKey)].Status != StatusHealthy {
		t.Fatal("expected healthy baseline")
	}

	// New failures inside the cache window are not reflected yet.
	for i := 0; i < 10; i++ {
		tracker.RecordFailure(string(testKey))
	}
	second := m.CheckHealth(context.Background())
	if second[string(testKey)].Status != StatusHealthy {
		t.Error("cached report should not pick up new failures")
	}
}
