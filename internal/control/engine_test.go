package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/marketsync/internal/core/config"
	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/storage/memory"
	"github.com/vietddude/marketsync/internal/reliability/failure"
	"github.com/vietddude/marketsync/internal/reliability/quality"
)

const testKey = "binance:BTCUSDT:candles:1m"

// captureSink records alerts instead of logging them.
type captureSink struct {
	alerts []Alert
}

func (s *captureSink) Notify(ctx context.Context, alert Alert) {
	s.alerts = append(s.alerts, alert)
}

// downSeriesRepo simulates a store outage for every series.
type downSeriesRepo struct{}

func (downSeriesRepo) StoredTimestamps(
	ctx context.Context, key domain.SeriesKey, start, end time.Time,
) ([]time.Time, error) {
	return nil, errors.New("connection refused")
}

func (downSeriesRepo) Candles(
	ctx context.Context, key domain.SeriesKey, start, end time.Time,
) ([]domain.Candle, error) {
	return nil, errors.New("connection refused")
}

func (downSeriesRepo) UpsertBatch(
	ctx context.Context, key domain.SeriesKey, candles []domain.Candle,
) (int, error) {
	return 0, errors.New("connection refused")
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(
	ctx context.Context, key domain.SeriesKey, start, end time.Time, priority int, expectedRecords *int,
) (string, error) {
	return "task-id", nil
}

func newTestEngine(tracker *failure.Tracker, sink *captureSink) *Engine {
	specs := []domain.SeriesSpec{{Key: testKey, Interval: time.Minute, Source: "binance"}}
	checker := quality.NewChecker(quality.DefaultConfig(),
		downSeriesRepo{}, memory.NewQualityRepo(memory.NewStorage()), noopEnqueuer{}, specs)

	return &Engine{
		cfg: &config.AppConfig{
			Series: []config.SeriesConfig{
				{Key: testKey, Source: "binance", Interval: time.Minute},
			},
		},
		checker: checker,
		tracker: tracker,
		alerts:  sink,
		alerted: make(map[string]bool),
	}
}

func TestQualityPass_ThresholdAlertSurvivesFailedCheck(t *testing.T) {
	tracker := failure.New(2)
	tracker.RecordFailure(testKey)
	tracker.RecordFailure(testKey)

	sink := &captureSink{}
	engine := newTestEngine(tracker, sink)

	// The series repo is down, so CheckAll yields no summary for the series.
	// The stuck source must still be reported.
	engine.runQualityPass(context.Background())

	if len(sink.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d: %v", len(sink.alerts), sink.alerts)
	}
	if sink.alerts[0].SeriesKey != testKey {
		t.Errorf("alert for %s, want %s", sink.alerts[0].SeriesKey, testKey)
	}
	if sink.alerts[0].Reason != "consecutive fetch failures exceeded threshold" {
		t.Errorf("unexpected reason %q", sink.alerts[0].Reason)
	}
}

func TestQualityPass_ThresholdAlertFiresOncePerEpisode(t *testing.T) {
	tracker := failure.New(2)
	tracker.RecordFailure(testKey)
	tracker.RecordFailure(testKey)

	sink := &captureSink{}
	engine := newTestEngine(tracker, sink)

	engine.runQualityPass(context.Background())
	engine.runQualityPass(context.Background())
	if len(sink.alerts) != 1 {
		t.Fatalf("ongoing breach should alert once, got %d", len(sink.alerts))
	}

	// Recovery resets the episode; a fresh breach alerts again.
	tracker.RecordSuccess(testKey)
	engine.runQualityPass(context.Background())

	tracker.RecordFailure(testKey)
	tracker.RecordFailure(testKey)
	engine.runQualityPass(context.Background())
	if len(sink.alerts) != 2 {
		t.Fatalf("new breach after recovery should alert again, got %d", len(sink.alerts))
	}
}
