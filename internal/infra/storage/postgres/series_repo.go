package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// SeriesRepo implements storage.SeriesRepository on PostgreSQL.
type SeriesRepo struct {
	db *DB
}

func NewSeriesRepo(db *DB) *SeriesRepo {
	return &SeriesRepo{db: db}
}

// StoredTimestamps returns the sorted timestamps present in [start, end).
func (r *SeriesRepo) StoredTimestamps(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
) ([]time.Time, error) {
	var stamps []time.Time
	err := r.db.SelectContext(ctx, &stamps, `
		SELECT ts FROM candles
		WHERE series_key = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`,
		string(key), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get stored timestamps: %w", err)
	}

	for i := range stamps {
		stamps[i] = stamps[i].UTC()
	}
	return stamps, nil
}

// Candles returns the stored samples in [start, end), timestamp ascending.
func (r *SeriesRepo) Candles(
	ctx context.Context,
	key domain.SeriesKey,
	start, end time.Time,
) ([]domain.Candle, error) {
	var candles []domain.Candle
	err := r.db.SelectContext(ctx, &candles, `
		SELECT ts, open, high, low, close, volume FROM candles
		WHERE series_key = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`,
		string(key), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get candles: %w", err)
	}

	for i := range candles {
		candles[i].Timestamp = candles[i].Timestamp.UTC()
	}
	return candles, nil
}

const upsertCandleQuery = `
	INSERT INTO candles (series_key, ts, open, high, low, close, volume)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (series_key, ts) DO UPDATE SET
		open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		close = EXCLUDED.close, volume = EXCLUDED.volume`

// UpsertBatch writes candles keyed on (series_key, ts) inside one
// transaction. Replaying identical rows reports the same count.
func (r *SeriesRepo) UpsertBatch(
	ctx context.Context,
	key domain.SeriesKey,
	candles []domain.Candle,
) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertCandleQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			string(key), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert candle at %s: %w", c.Timestamp, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return written, nil
}
