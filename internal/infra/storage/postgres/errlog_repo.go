package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// ErrorLogRepo implements storage.ErrorLogRepository on PostgreSQL.
type ErrorLogRepo struct {
	db *DB
}

func NewErrorLogRepo(db *DB) *ErrorLogRepo {
	return &ErrorLogRepo{db: db}
}

func (r *ErrorLogRepo) Record(ctx context.Context, e *domain.APIError) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_error_log (source, operation, error_kind, error_code, error_message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Source, e.Operation, e.ErrorKind, e.ErrorCode, e.ErrorMessage, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record api error: %w", err)
	}
	return nil
}
