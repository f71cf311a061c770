package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight-backend/internal/documents"
	"finsight-backend/internal/extract"
	"finsight-backend/internal/pipeline"
	"finsight-backend/internal/queue"
	"finsight-backend/internal/shared/metrics"
	"finsight-backend/internal/shared/storage/object"
	"finsight-backend/internal/shared/telemetry"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const maxDocumentsPerReport = 10

// Service contains business logic for reports.
type Service struct {
	Repo     Repo
	DocRepo  documents.DocumentsRepo
	Store    object.ObjectStore
	Pipeline *pipeline.Pipeline
	Queue    queue.Client
}

// Create enqueues a new report over the given documents. When a queue client
// is configured the job is handed to the worker fleet; otherwise processing
// happens in-process.
func (s *Service) Create(ctx context.Context, userID, title string, documentIDs []string) (Report, error) {
	if userID == "" {
		return Report{}, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if len(documentIDs) == 0 {
		return Report{}, fmt.Errorf("%w: at least one document is required", ErrInvalidInput)
	}
	if len(documentIDs) > maxDocumentsPerReport {
		return Report{}, fmt.Errorf("%w: at most %d documents per report", ErrInvalidInput, maxDocumentsPerReport)
	}

	// Ownership check happens up front so a queued job never discovers a
	// foreign document mid-run.
	if _, err := s.DocRepo.GetManyByIDs(ctx, userID, documentIDs); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return Report{}, documents.ErrNotFound
		}
		return Report{}, err
	}

	report := Report{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		DocumentIDs: documentIDs,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, report); err != nil {
		return Report{}, err
	}

	if s.Queue != nil {
		msg := queue.Message{
			ReportID:   report.ID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("report enqueue failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
			go s.processAsync(backgroundWithRequestID(ctx), report.ID)
		}
		return report, nil
	}

	go s.processAsync(backgroundWithRequestID(ctx), report.ID)
	return report, nil
}

// Get returns a report by ID scoped to the owner.
func (s *Service) Get(ctx context.Context, userID, reportID string) (Report, error) {
	if userID == "" || reportID == "" {
		return Report{}, ErrInvalidInput
	}
	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.UserID != userID {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// List returns reports for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) processAsync(ctx context.Context, reportID string) {
	_ = s.Process(ctx, reportID)
}

// Process runs the full pipeline for a queued report. It is called both by
// the in-process fallback and by the queue worker; the returned error carries
// the classification the worker uses to decide on redelivery.
func (s *Service) Process(ctx context.Context, reportID string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.failReport(ctx, reportID, "", err, &startedAt)
		}
	}()

	if err := s.Repo.UpdateStatus(ctx, reportID, StatusProcessing, &startedAt); err != nil {
		wrapped := fmt.Errorf("set processing failed: %w", err)
		s.failReport(ctx, reportID, "", wrapped, &startedAt)
		return wrapped
	}

	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		wrapped := fmt.Errorf("report lookup: %w", err)
		s.failReport(ctx, reportID, "", wrapped, &startedAt)
		return wrapped
	}

	metrics.IncReportStarted()
	telemetry.Info("report.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           report.UserID,
		"report_id":         report.ID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})

	if s.DocRepo == nil || s.Store == nil || s.Pipeline == nil {
		wrapped := errors.New("missing pipeline dependencies")
		s.failReport(ctx, reportID, report.UserID, wrapped, &startedAt)
		return wrapped
	}

	docs, err := s.DocRepo.GetManyByIDs(ctx, report.UserID, report.DocumentIDs)
	if err != nil {
		wrapped := fmt.Errorf("document lookup: %w", err)
		s.failReport(ctx, reportID, report.UserID, wrapped, &startedAt)
		return wrapped
	}

	inputs, err := s.loadInputs(ctx, docs)
	if err != nil {
		wrapped := fmt.Errorf("storage read: %w", err)
		s.failReport(ctx, reportID, report.UserID, wrapped, &startedAt)
		return wrapped
	}

	result := s.Pipeline.Run(ctx, inputs)
	for range result.Extraction.Issues {
		metrics.IncExtractionFailed()
	}

	payload, err := resultPayload(result)
	if err != nil {
		wrapped := fmt.Errorf("encode pipeline result: %w", err)
		s.failReport(ctx, reportID, report.UserID, wrapped, &startedAt)
		return wrapped
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.UpdateResult(ctx, reportID, payload, completedAt); err != nil {
		wrapped := fmt.Errorf("set report result failed: %w", err)
		s.failReport(ctx, reportID, report.UserID, wrapped, &startedAt)
		return wrapped
	}

	metrics.IncReportCompleted()
	metrics.ObserveReportDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("report.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           report.UserID,
		"report_id":         report.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"files_processed":   result.Extraction.FilesProcessed,
		"files_failed":      result.Extraction.FilesFailed,
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

// loadInputs fetches document payloads from object storage in request order.
func (s *Service) loadInputs(ctx context.Context, docs []documents.Document) ([]extract.Input, error) {
	inputs := make([]extract.Input, 0, len(docs))
	for _, doc := range docs {
		data, err := loadObject(ctx, s.Store, doc.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		inputs = append(inputs, extract.Input{
			Source:   doc.FileName,
			FileType: doc.FileType,
			Data:     data,
		})
	}
	return inputs, nil
}

func (s *Service) failReport(ctx context.Context, reportID, userID string, err error, startedAt *time.Time) {
	code, retryable := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.UpdateFailure(context.Background(), reportID, code, msg, retryable, completedAt); updateErr != nil {
		telemetry.Error("report failure update failed", map[string]any{
			"report_id": reportID,
			"error":     updateErr.Error(),
			"original":  msg,
		})
	}
	metrics.IncReportFailed()
	if startedAt != nil {
		metrics.ObserveReportDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("report.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"report_id":         reportID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) (string, bool) {
	if err == nil {
		return ErrorCodeInternal, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodePipeline, true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unsupported file format") || strings.Contains(msg, "extract") {
		return ErrorCodeExtraction, false
	}
	if strings.Contains(msg, "validation") {
		return ErrorCodeValidation, false
	}
	if strings.Contains(msg, "document") || strings.Contains(msg, "storage") ||
		strings.Contains(msg, "report result") || strings.Contains(msg, "set processing") {
		return ErrorCodeStorage, true
	}
	if strings.Contains(msg, "pipeline") || strings.Contains(msg, "encode pipeline result") {
		return ErrorCodePipeline, false
	}
	return ErrorCodeInternal, false
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

// resultPayload flattens the typed pipeline result into the JSON tree the
// repo persists. Round-tripping through encoding keeps the stored document
// identical to what the API serves.
func resultPayload(result pipeline.Result) (map[string]any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func loadObject(ctx context.Context, store object.ObjectStore, key string) ([]byte, error) {
	body, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}
