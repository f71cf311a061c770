package reports

import (
	"context"
	"time"
)

// Repo defines persistence operations for reports.
type Repo interface {
	Create(ctx context.Context, report Report) error
	GetByID(ctx context.Context, reportID string) (Report, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error)
	UpdateStatus(ctx context.Context, reportID, status string, startedAt *time.Time) error
	UpdateResult(ctx context.Context, reportID string, result map[string]any, completedAt time.Time) error
	UpdateFailure(ctx context.Context, reportID, errorCode, errorMessage string, retryable bool, completedAt time.Time) error
}
