package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// TaskRepo implements storage.TaskRepository on PostgreSQL. The table is the
// single source of truth for the backfill queue; claiming relies on
// FOR UPDATE SKIP LOCKED so scaled-out schedulers never run the same task.
type TaskRepo struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

type taskRow struct {
	ID              int64          `db:"id"`
	SeriesKey       string         `db:"series_key"`
	RangeStart      time.Time      `db:"range_start"`
	RangeEnd        time.Time      `db:"range_end"`
	Status          string         `db:"status"`
	Priority        int            `db:"priority"`
	ExpectedRecords sql.NullInt64  `db:"expected_records"`
	ActualRecords   sql.NullInt64  `db:"actual_records"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r taskRow) toDomain() *domain.BackfillTask {
	t := &domain.BackfillTask{
		ID:         strconv.FormatInt(r.ID, 10),
		SeriesKey:  domain.SeriesKey(r.SeriesKey),
		RangeStart: r.RangeStart.UTC(),
		RangeEnd:   r.RangeEnd.UTC(),
		Status:     domain.TaskStatus(r.Status),
		Priority:   r.Priority,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.ExpectedRecords.Valid {
		n := int(r.ExpectedRecords.Int64)
		t.ExpectedRecords = &n
	}
	if r.ActualRecords.Valid {
		n := int(r.ActualRecords.Int64)
		t.ActualRecords = &n
	}
	if r.ErrorMessage.Valid {
		t.ErrorMessage = r.ErrorMessage.String
	}
	return t
}

const enqueueQuery = `
	INSERT INTO backfill_tasks
		(series_key, range_start, range_end, status, priority, expected_records, created_at, updated_at)
	VALUES ($1, $2, $3, 'pending', $4, $5, NOW(), NOW())
	ON CONFLICT (series_key, range_start, range_end) DO UPDATE SET
		status = CASE
			WHEN backfill_tasks.status IN ('failed', 'completed') THEN 'pending'
			ELSE backfill_tasks.status
		END,
		error_message = CASE
			WHEN backfill_tasks.status IN ('failed', 'completed') THEN NULL
			ELSE backfill_tasks.error_message
		END,
		updated_at = NOW()
	RETURNING id`

// Enqueue inserts a task or resolves to the existing row for the same range.
// A pending or running row is left untouched; a failed or completed row is
// reset to pending since the gap was re-detected.
func (r *TaskRepo) Enqueue(ctx context.Context, task *domain.BackfillTask) (string, error) {
	var expected sql.NullInt64
	if task.ExpectedRecords != nil {
		expected = sql.NullInt64{Int64: int64(*task.ExpectedRecords), Valid: true}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, enqueueQuery,
		string(task.SeriesKey), task.RangeStart, task.RangeEnd, task.Priority, expected,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

const claimQuery = `
	UPDATE backfill_tasks SET status = 'running', updated_at = NOW()
	WHERE id IN (
		SELECT id FROM backfill_tasks
		WHERE status = 'pending'
		ORDER BY priority ASC, created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, series_key, range_start, range_end, status, priority,
		expected_records, actual_records, error_message, created_at, updated_at`

// ClaimPending atomically moves up to limit pending tasks to running.
func (r *TaskRepo) ClaimPending(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, claimQuery, limit); err != nil {
		return nil, fmt.Errorf("failed to claim pending tasks: %w", err)
	}

	tasks := make([]*domain.BackfillTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, nil
}

// ReclaimStale returns claimed-but-abandoned tasks to the queue. A running
// row whose updated_at predates the lease cutoff belongs to a scheduler that
// died mid-execution; without this the row would be stuck forever, since
// Enqueue only resets failed or completed rows.
func (r *TaskRepo) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'running' AND updated_at < $1`,
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reclaimed tasks: %w", err)
	}
	return int(n), nil
}

// UpdateStatus transitions a task and records the outcome.
func (r *TaskRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.TaskStatus,
	actualRecords *int,
	errMsg string,
) error {
	intID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", id, err)
	}

	var actual sql.NullInt64
	if actualRecords != nil {
		actual = sql.NullInt64{Int64: int64(*actualRecords), Valid: true}
	}
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = $2, actual_records = COALESCE($3, actual_records),
			error_message = $4, updated_at = NOW()
		WHERE id = $1`,
		intID, string(status), actual, msg,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

// Pending returns up to limit pending tasks in claim order, without claiming.
func (r *TaskRepo) Pending(ctx context.Context, limit int) ([]*domain.BackfillTask, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, series_key, range_start, range_end, status, priority,
			expected_records, actual_records, error_message, created_at, updated_at
		FROM backfill_tasks
		WHERE status = 'pending'
		ORDER BY priority ASC, created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending tasks: %w", err)
	}

	tasks := make([]*domain.BackfillTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, nil
}

// CountByStatus counts tasks for a series in the given status. An empty key
// counts across all series.
func (r *TaskRepo) CountByStatus(
	ctx context.Context,
	key domain.SeriesKey,
	status domain.TaskStatus,
) (int, error) {
	var count int
	var err error
	if key == "" {
		err = r.db.GetContext(ctx, &count,
			`SELECT count(*) FROM backfill_tasks WHERE status = $1`, string(status))
	} else {
		err = r.db.GetContext(ctx, &count,
			`SELECT count(*) FROM backfill_tasks WHERE series_key = $1 AND status = $2`,
			string(key), string(status))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
