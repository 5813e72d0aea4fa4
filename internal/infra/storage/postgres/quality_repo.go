package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// QualityRepo implements storage.QualityRepository on PostgreSQL.
// The table is append-only history; rows are never updated.
type QualityRepo struct {
	db *DB
}

func NewQualityRepo(db *DB) *QualityRepo {
	return &QualityRepo{db: db}
}

func (r *QualityRepo) Insert(ctx context.Context, s *domain.QualitySummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quality_summary
			(series_key, check_time, window_start, window_end, expected_count,
			 actual_count, missing_count, out_of_order_count, duplicate_count, quality_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(s.SeriesKey), s.CheckTime, s.WindowStart, s.WindowEnd, s.ExpectedCount,
		s.ActualCount, s.MissingCount, s.OutOfOrderCount, s.DuplicateCount, s.QualityScore)
	if err != nil {
		return fmt.Errorf("failed to insert quality summary: %w", err)
	}
	return nil
}

type summaryRow struct {
	SeriesKey       string    `db:"series_key"`
	CheckTime       time.Time `db:"check_time"`
	WindowStart     time.Time `db:"window_start"`
	WindowEnd       time.Time `db:"window_end"`
	ExpectedCount   int       `db:"expected_count"`
	ActualCount     int       `db:"actual_count"`
	MissingCount    int       `db:"missing_count"`
	OutOfOrderCount int       `db:"out_of_order_count"`
	DuplicateCount  int       `db:"duplicate_count"`
	QualityScore    float64   `db:"quality_score"`
}

func (r *QualityRepo) Latest(ctx context.Context, key domain.SeriesKey) (*domain.QualitySummary, error) {
	var row summaryRow
	err := r.db.GetContext(ctx, &row, `
		SELECT series_key, check_time, window_start, window_end, expected_count,
			actual_count, missing_count, out_of_order_count, duplicate_count, quality_score
		FROM quality_summary
		WHERE series_key = $1
		ORDER BY check_time DESC
		LIMIT 1`, string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest quality summary: %w", err)
	}

	return &domain.QualitySummary{
		SeriesKey:       domain.SeriesKey(row.SeriesKey),
		CheckTime:       row.CheckTime.UTC(),
		WindowStart:     row.WindowStart.UTC(),
		WindowEnd:       row.WindowEnd.UTC(),
		ExpectedCount:   row.ExpectedCount,
		ActualCount:     row.ActualCount,
		MissingCount:    row.MissingCount,
		OutOfOrderCount: row.OutOfOrderCount,
		DuplicateCount:  row.DuplicateCount,
		QualityScore:    row.QualityScore,
	}, nil
}
