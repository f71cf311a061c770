package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new report row.
func (r *PGRepo) Create(ctx context.Context, report Report) error {
	const query = `
INSERT INTO reports (id, user_id, title, document_ids, status, created_at, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $6)`
	ids, err := json.Marshal(report.DocumentIDs)
	if err != nil {
		return fmt.Errorf("encode document ids: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		report.ID,
		report.UserID,
		nullableString(report.Title),
		ids,
		report.Status,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID returns a report by ID.
func (r *PGRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	const query = `
SELECT id, user_id, title, document_ids, status, result,
       error_code, error_message, error_retryable,
       started_at, completed_at, created_at, updated_at
FROM reports
WHERE id = $1
LIMIT 1`
	report, err := scanReport(r.DB.QueryRowContext(ctx, query, reportID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, fmt.Errorf("select report: %w", err)
	}
	return report, nil
}

// ListByUser lists reports for a user ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, user_id, title, document_ids, status, result,
       error_code, error_message, error_retryable,
       started_at, completed_at, created_at, updated_at
FROM reports
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

// UpdateStatus updates the status and optionally records the start time.
func (r *PGRepo) UpdateStatus(ctx context.Context, reportID, status string, startedAt *time.Time) error {
	const query = `
UPDATE reports
SET status = $1,
    started_at = CASE
        WHEN $2::timestamptz IS NOT NULL THEN $2::timestamptz
        WHEN $1 = 'processing' AND started_at IS NULL THEN now()
        ELSE started_at
    END,
    updated_at = now()
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, status, startedAt, reportID)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResult stores the completed result payload.
func (r *PGRepo) UpdateResult(ctx context.Context, reportID string, result map[string]any, completedAt time.Time) error {
	const query = `
UPDATE reports
SET status = 'completed',
    result = $1::jsonb,
    completed_at = $2,
    updated_at = now()
WHERE id = $3`
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode report result: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, payload, completedAt, reportID)
	if err != nil {
		return fmt.Errorf("update report result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFailure marks the report failed with a classified error.
func (r *PGRepo) UpdateFailure(ctx context.Context, reportID, errorCode, errorMessage string, retryable bool, completedAt time.Time) error {
	const query = `
UPDATE reports
SET status = 'failed',
    error_code = $1,
    error_message = $2,
    error_retryable = $3,
    completed_at = $4,
    updated_at = now()
WHERE id = $5`
	res, err := r.DB.ExecContext(ctx, query, errorCode, errorMessage, retryable, completedAt, reportID)
	if err != nil {
		return fmt.Errorf("update report failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (Report, error) {
	var report Report
	var title sql.NullString
	var documentIDs []byte
	var result sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var retryable sql.NullBool
	var startedAt sql.NullTime
	var completedAt sql.NullTime

	err := row.Scan(
		&report.ID,
		&report.UserID,
		&title,
		&documentIDs,
		&report.Status,
		&result,
		&errorCode,
		&errorMessage,
		&retryable,
		&startedAt,
		&completedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return Report{}, err
	}
	if title.Valid {
		report.Title = title.String
	}
	if len(documentIDs) > 0 {
		if err := json.Unmarshal(documentIDs, &report.DocumentIDs); err != nil {
			return Report{}, fmt.Errorf("decode document ids: %w", err)
		}
	}
	if result.Valid {
		report.Result = map[string]any{}
		if err := json.Unmarshal([]byte(result.String), &report.Result); err != nil {
			report.Result = nil
		}
	}
	if errorCode.Valid {
		report.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		report.ErrorMessage = errorMessage.String
	}
	if retryable.Valid {
		report.Retryable = retryable.Bool
	}
	if startedAt.Valid {
		report.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		report.CompletedAt = &completedAt.Time
	}
	return report, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
