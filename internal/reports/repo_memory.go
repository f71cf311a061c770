package reports

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reports: make(map[string]Report)}
}

// Create stores a report.
func (r *MemoryRepo) Create(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report.UpdatedAt = report.CreatedAt
	r.reports[report.ID] = report
	return nil
}

// GetByID returns a report by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[reportID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// ListByUser returns reports for a user, newest first.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Report
	for _, report := range r.reports {
		if report.UserID == userID {
			out = append(out, report)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Report{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus sets the status and, when provided, the start timestamp.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, reportID, status string, startedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok {
		return ErrNotFound
	}
	report.Status = status
	if startedAt != nil {
		report.StartedAt = startedAt
	}
	report.UpdatedAt = time.Now().UTC()
	r.reports[reportID] = report
	return nil
}

// UpdateResult stores the completed result.
func (r *MemoryRepo) UpdateResult(ctx context.Context, reportID string, result map[string]any, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok {
		return ErrNotFound
	}
	report.Status = StatusCompleted
	report.Result = result
	report.CompletedAt = &completedAt
	report.UpdatedAt = time.Now().UTC()
	r.reports[reportID] = report
	return nil
}

// UpdateFailure marks the report failed with a classified error.
func (r *MemoryRepo) UpdateFailure(ctx context.Context, reportID, errorCode, errorMessage string, retryable bool, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok {
		return ErrNotFound
	}
	report.Status = StatusFailed
	report.ErrorCode = errorCode
	report.ErrorMessage = errorMessage
	report.Retryable = retryable
	report.CompletedAt = &completedAt
	report.UpdatedAt = time.Now().UTC()
	r.reports[reportID] = report
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
