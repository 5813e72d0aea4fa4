package quality

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/marketsync/internal/core/domain"
	"github.com/vietddude/marketsync/internal/infra/storage/memory"
)

const testKey = domain.SeriesKey("binance:BTCUSDT:candles:1m")

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeEnqueuer records every backfill request the checker files.
type fakeEnqueuer struct {
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	key      domain.SeriesKey
	start    time.Time
	end      time.Time
	priority int
	expected int
}

func (f *fakeEnqueuer) Enqueue(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
	priority int,
	expectedRecords *int,
) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	call := enqueueCall{key: key, start: start, end: end, priority: priority}
	if expectedRecords != nil {
		call.expected = *expectedRecords
	}
	f.calls = append(f.calls, call)
	return "task-id", nil
}

func candleAt(ts time.Time) domain.Candle {
	return domain.Candle{
		Timestamp: ts,
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(110),
		Low:       decimal.NewFromInt(90),
		Close:     decimal.NewFromInt(105),
		Volume:    decimal.NewFromInt(10),
	}
}

func seedCandles(t *testing.T, repo *memory.SeriesRepo, minuteOffsets ...int) {
	t.Helper()
	candles := make([]domain.Candle, len(minuteOffsets))
	for i, m := range minuteOffsets {
		candles[i] = candleAt(t0.Add(time.Duration(m) * time.Minute))
	}
	if _, err := repo.UpsertBatch(context.Background(), testKey, candles); err != nil {
		t.Fatal(err)
	}
}

func newChecker(store *memory.Storage, enq Enqueuer, cfg Config) *Checker {
	specs := []domain.SeriesSpec{
		{Key: testKey, Interval: time.Minute, Source: "binance"},
	}
	c := NewChecker(cfg, memory.NewSeriesRepo(store), memory.NewQualityRepo(store), enq, specs)
	c.now = func() time.Time { return t0.Add(10 * time.Minute) }
	return c
}

func TestCheckSeries_ScoresAndQueuesGaps(t *testing.T) {
	store := memory.NewStorage()
	// Window is [t0, t0+10m); the trailing minute is excluded from the scan,
	// so the grid covers t0 .. t0+8m. Minutes 4 and 7 are missing.
	seedCandles(t, memory.NewSeriesRepo(store), 0, 1, 2, 3, 5, 6, 8)

	enq := &fakeEnqueuer{}
	cfg := DefaultConfig()
	cfg.Lookback = 10 * time.Minute
	cfg.RecentGapSlots = 3
	checker := newChecker(store, enq, cfg)

	summary, err := checker.CheckSeries(context.Background(),
		domain.SeriesSpec{Key: testKey, Interval: time.Minute, Source: "binance"})
	if err != nil {
		t.Fatal(err)
	}

	if summary.ExpectedCount != 9 {
		t.Errorf("ExpectedCount = %d, want 9", summary.ExpectedCount)
	}
	if summary.MissingCount != 2 {
		t.Errorf("MissingCount = %d, want 2", summary.MissingCount)
	}
	if summary.ActualCount != 7 {
		t.Errorf("ActualCount = %d, want 7", summary.ActualCount)
	}
	wantScore := 1 - 2.0/9.0
	if math.Abs(summary.QualityScore-wantScore) > 1e-9 {
		t.Errorf("QualityScore = %f, want %f", summary.QualityScore, wantScore)
	}

	if len(enq.calls) != 2 {
		t.Fatalf("expected 2 backfill requests, got %d", len(enq.calls))
	}

	// Gap ending at t0+5m is older than the recent cutoff (t0+7m).
	first := enq.calls[0]
	if !first.start.Equal(t0.Add(4*time.Minute)) || !first.end.Equal(t0.Add(5*time.Minute)) {
		t.Errorf("gap[0] = [%v, %v)", first.start, first.end)
	}
	if first.priority != domain.PriorityHistorical {
		t.Errorf("gap[0] priority = %d, want historical %d", first.priority, domain.PriorityHistorical)
	}
	if first.expected != 1 {
		t.Errorf("gap[0] expected records = %d, want 1", first.expected)
	}

	second := enq.calls[1]
	if !second.start.Equal(t0.Add(7*time.Minute)) || !second.end.Equal(t0.Add(8*time.Minute)) {
		t.Errorf("gap[1] = [%v, %v)", second.start, second.end)
	}
	if second.priority != domain.PriorityRecent {
		t.Errorf("gap[1] priority = %d, want recent %d", second.priority, domain.PriorityRecent)
	}

	// The summary is persisted as append-only history.
	latest, err := memory.NewQualityRepo(store).Latest(context.Background(), testKey)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.QualityScore != summary.QualityScore {
		t.Errorf("persisted summary mismatch: %+v", latest)
	}
}

func TestCheckSeries_CompleteSeriesScoresOne(t *testing.T) {
	store := memory.NewStorage()
	seedCandles(t, memory.NewSeriesRepo(store), 0, 1, 2, 3, 4, 5, 6, 7, 8)

	enq := &fakeEnqueuer{}
	cfg := DefaultConfig()
	cfg.Lookback = 10 * time.Minute
	checker := newChecker(store, enq, cfg)

	summary, err := checker.CheckSeries(context.Background(),
		domain.SeriesSpec{Key: testKey, Interval: time.Minute, Source: "binance"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.QualityScore != 1.0 {
		t.Errorf("QualityScore = %f, want 1.0", summary.QualityScore)
	}
	if len(enq.calls) != 0 {
		t.Errorf("complete series should queue nothing, got %d requests", len(enq.calls))
	}
	if checker.BelowFloor(summary) {
		t.Error("perfect score must not breach the floor")
	}
}

func TestCheckSeries_EmptyStoreScoresZero(t *testing.T) {
	store := memory.NewStorage()
	enq := &fakeEnqueuer{}
	cfg := DefaultConfig()
	cfg.Lookback = 10 * time.Minute
	checker := newChecker(store, enq, cfg)

	summary, err := checker.CheckSeries(context.Background(),
		domain.SeriesSpec{Key: testKey, Interval: time.Minute, Source: "binance"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.QualityScore != 0.0 {
		t.Errorf("QualityScore = %f, want 0.0", summary.QualityScore)
	}
	if !checker.BelowFloor(summary) {
		t.Error("empty series should breach the floor")
	}
	if len(enq.calls) != 1 {
		t.Fatalf("expected the whole window as one gap, got %d requests", len(enq.calls))
	}
	if enq.calls[0].expected != 9 {
		t.Errorf("expected records = %d, want 9", enq.calls[0].expected)
	}
}

func TestCheckSeries_ConfiguredTrailingExclusion(t *testing.T) {
	store := memory.NewStorage()
	// Minutes 6 through 9 have no data, but the configured exclusion hides
	// the last four minutes of the window from the scan.
	seedCandles(t, memory.NewSeriesRepo(store), 0, 1, 2, 3, 4, 5)

	enq := &fakeEnqueuer{}
	cfg := DefaultConfig()
	cfg.Lookback = 10 * time.Minute
	cfg.TrailingExclusion = 4 * time.Minute
	checker := newChecker(store, enq, cfg)

	summary, err := checker.CheckSeries(context.Background(),
		domain.SeriesSpec{Key: testKey, Interval: time.Minute, Source: "binance"})
	if err != nil {
		t.Fatal(err)
	}

	if summary.ExpectedCount != 6 {
		t.Errorf("ExpectedCount = %d, want 6", summary.ExpectedCount)
	}
	if summary.MissingCount != 0 {
		t.Errorf("MissingCount = %d, want 0", summary.MissingCount)
	}
	if len(enq.calls) != 0 {
		t.Errorf("excluded trailing slots must not queue backfills, got %d", len(enq.calls))
	}

	// The same store with the default one-interval exclusion sees the gap.
	dflt := DefaultConfig()
	dflt.Lookback = 10 * time.Minute
	defaultChecker := newChecker(store, &fakeEnqueuer{}, dflt)
	summary, err = defaultChecker.CheckSeries(context.Background(),
		domain.SeriesSpec{Key: testKey, Interval: time.Minute, Source: "binance"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.MissingCount != 3 {
		t.Errorf("default exclusion MissingCount = %d, want 3", summary.MissingCount)
	}
}

func TestCheckAll_IsolatesBrokenSeries(t *testing.T) {
	store := memory.NewStorage()
	seedCandles(t, memory.NewSeriesRepo(store), 0, 1, 2, 3, 4, 5, 6, 7, 8)

	cfg := DefaultConfig()
	cfg.Lookback = 10 * time.Minute
	broken := domain.SeriesKey("binance:ETHUSDT:candles:1m")
	checker := NewChecker(cfg,
		&errSeriesRepo{inner: memory.NewSeriesRepo(store), failKey: broken},
		memory.NewQualityRepo(store), &fakeEnqueuer{},
		[]domain.SeriesSpec{
			{Key: broken, Interval: time.Minute, Source: "binance"},
			{Key: testKey, Interval: time.Minute, Source: "binance"},
		})
	checker.now = func() time.Time { return t0.Add(10 * time.Minute) }

	summaries := checker.CheckAll(context.Background())
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary despite the broken series, got %d", len(summaries))
	}
	if summaries[0].SeriesKey != testKey {
		t.Errorf("surviving summary is for %s, want %s", summaries[0].SeriesKey, testKey)
	}
}

// errSeriesRepo fails loads for one key and delegates the rest.
type errSeriesRepo struct {
	inner   *memory.SeriesRepo
	failKey domain.SeriesKey
}

func (r *errSeriesRepo) StoredTimestamps(
	ctx context.Context, key domain.SeriesKey, start, end time.Time,
) ([]time.Time, error) {
	if key == r.failKey {
		return nil, errors.New("connection reset")
	}
	return r.inner.StoredTimestamps(ctx, key, start, end)
}

func (r *errSeriesRepo) Candles(
	ctx context.Context, key domain.SeriesKey, start, end time.Time,
) ([]domain.Candle, error) {
	if key == r.failKey {
		return nil, errors.New("connection reset")
	}
	return r.inner.Candles(ctx, key, start, end)
}

func (r *errSeriesRepo) UpsertBatch(
	ctx context.Context, key domain.SeriesKey, candles []domain.Candle,
) (int, error) {
	return r.inner.UpsertBatch(ctx, key, candles)
}

func TestValidate_OrderingAndDuplicates(t *testing.T) {
	base := candleAt(t0)
	dup := candleAt(t0)
	backwards := candleAt(t0.Add(-time.Minute))
	later := candleAt(t0.Add(time.Minute))

	res := validate([]domain.Candle{base, dup, later, backwards}, decimal.Zero)
	if res.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", res.Duplicates)
	}
	if res.OutOfOrder != 1 {
		t.Errorf("OutOfOrder = %d, want 1", res.OutOfOrder)
	}
	if res.ValueViolations != 0 {
		t.Errorf("ValueViolations = %d, want 0", res.ValueViolations)
	}
}

func TestValidate_ValueSanity(t *testing.T) {
	negVolume := candleAt(t0)
	negVolume.Volume = decimal.NewFromInt(-1)

	zeroPrice := candleAt(t0.Add(time.Minute))
	zeroPrice.Open = decimal.Zero

	inverted := candleAt(t0.Add(2 * time.Minute))
	inverted.High = decimal.NewFromInt(80) // below Low

	overMax := candleAt(t0.Add(3 * time.Minute))
	overMax.Close = decimal.NewFromInt(1000000)

	res := validate([]domain.Candle{negVolume, zeroPrice, inverted, overMax},
		decimal.NewFromInt(100000))
	if res.ValueViolations != 4 {
		t.Errorf("ValueViolations = %d, want 4", res.ValueViolations)
	}

	// With the price cap disabled the oversized close is fine.
	res = validate([]domain.Candle{overMax}, decimal.Zero)
	if res.ValueViolations != 0 {
		t.Errorf("ValueViolations without cap = %d, want 0", res.ValueViolations)
	}
}
