package reports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"finsight-backend/internal/documents"
	"finsight-backend/internal/pipeline"
	"finsight-backend/internal/queue"
)

type stubStore struct {
	objects map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Save(ctx context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := userID + "/" + fileName
	s.objects[key] = data
	return key, int64(len(data)), "text/csv", nil
}

func (s *stubStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	data, ok := s.objects[storageKey]
	if !ok {
		return nil, errors.New("object missing: " + storageKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type captureQueue struct {
	sent []queue.Message
	err  error
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

const quarterlyCSV = `date,revenue,profit,expenses,assets,liabilities
2025-03-31,100000,12000,88000,500000,200000
2025-06-30,120000,18000,102000,510000,195000
2025-09-30,150000,27000,123000,530000,190000
2025-12-31,180000,36000,144000,560000,185000
`

func newTestService(t *testing.T) (*Service, *MemoryRepo, *stubStore) {
	t.Helper()
	store := newStubStore()
	repo := NewMemoryRepo()
	docRepo := documents.NewMemoryRepo()
	svc := &Service{
		Repo:     repo,
		DocRepo:  docRepo,
		Store:    store,
		Pipeline: pipeline.New(nil),
	}
	return svc, repo, store
}

func seedDocument(t *testing.T, svc *Service, userID, fileName, content string) documents.Document {
	t.Helper()
	store := svc.Store.(*stubStore)
	key := userID + "/" + fileName
	store.objects[key] = []byte(content)
	doc := documents.Document{
		ID:         "doc-" + fileName,
		UserID:     userID,
		FileName:   fileName,
		FileType:   "csv",
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := svc.DocRepo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty documentIds: err = %v", err)
	}
	if _, err := svc.Create(ctx, "", "", []string{"doc-1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing user: err = %v", err)
	}

	many := make([]string, maxDocumentsPerReport+1)
	for i := range many {
		many[i] = "doc"
	}
	if _, err := svc.Create(ctx, "user-1", "", many); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("too many documents: err = %v", err)
	}
}

func TestCreateRejectsForeignDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedDocument(t, svc, "someone-else", "q.csv", quarterlyCSV)

	_, err := svc.Create(context.Background(), "user-1", "", []string{"doc-q.csv"})
	if !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("err = %v, want documents.ErrNotFound", err)
	}
}

func TestCreateEnqueuesToWorkerQueue(t *testing.T) {
	svc, repo, _ := newTestService(t)
	q := &captureQueue{}
	svc.Queue = q
	doc := seedDocument(t, svc, "user-1", "q.csv", quarterlyCSV)

	ctx := WithRequestID(context.Background(), "req-42")
	report, err := svc.Create(ctx, "user-1", "Q4 review", []string{doc.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.Status != StatusQueued {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Title != "Q4 review" {
		t.Fatalf("title = %q", report.Title)
	}

	if len(q.sent) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(q.sent))
	}
	if q.sent[0].ReportID != report.ID {
		t.Fatalf("queued reportId = %q", q.sent[0].ReportID)
	}
	if q.sent[0].RequestID != "req-42" {
		t.Fatalf("queued requestId = %q", q.sent[0].RequestID)
	}

	stored, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("report not persisted: %v", err)
	}
	if stored.Status != StatusQueued {
		t.Fatalf("stored status = %q", stored.Status)
	}
}

func TestProcessCompletesReport(t *testing.T) {
	svc, repo, _ := newTestService(t)
	doc := seedDocument(t, svc, "user-1", "q.csv", quarterlyCSV)

	report := Report{
		ID:          "report-1",
		UserID:      "user-1",
		DocumentIDs: []string{doc.ID},
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := svc.Process(context.Background(), report.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Fatalf("status = %q, error = %q", stored.Status, stored.ErrorMessage)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Fatal("expected start and completion timestamps")
	}
	for _, key := range []string{"extraction", "data_analysis", "risk_evaluation", "market_strategy", "consensus", "generated_at"} {
		if _, ok := stored.Result[key]; !ok {
			t.Fatalf("result missing key %q", key)
		}
	}

	extraction, ok := stored.Result["extraction"].(map[string]any)
	if !ok {
		t.Fatalf("extraction = %T", stored.Result["extraction"])
	}
	if got := extraction["rows"].(float64); got != 4 {
		t.Fatalf("rows = %v", got)
	}
}

func TestProcessMissingDocumentFails(t *testing.T) {
	svc, repo, _ := newTestService(t)

	report := Report{
		ID:          "report-1",
		UserID:      "user-1",
		DocumentIDs: []string{"no-such-doc"},
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := svc.Process(context.Background(), report.ID); err == nil {
		t.Fatal("expected processing error")
	}

	stored, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("status = %q", stored.Status)
	}
	if stored.ErrorCode != ErrorCodeStorage {
		t.Fatalf("errorCode = %q", stored.ErrorCode)
	}
	if !stored.Retryable {
		t.Fatal("document lookup failures should be retryable")
	}
}

func TestProcessUnknownReport(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Process(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown report")
	}
}

func TestGetScopedToOwner(t *testing.T) {
	svc, repo, _ := newTestService(t)

	report := Report{ID: "report-1", UserID: "owner", Status: StatusQueued, CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Get(context.Background(), "owner", "report-1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(context.Background(), "intruder", "report-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign get err = %v, want ErrNotFound", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, ErrorCodePipeline, true},
		{"unsupported format", errors.New("unsupported file format: docm"), ErrorCodeExtraction, false},
		{"document lookup", errors.New("document lookup: not found"), ErrorCodeStorage, true},
		{"storage read", errors.New("storage read: connection reset"), ErrorCodeStorage, true},
		{"validation", errors.New("validation: bad input"), ErrorCodeValidation, false},
		{"unknown", errors.New("boom"), ErrorCodeInternal, false},
		{"nil", nil, ErrorCodeInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, retryable := classifyFailure(tc.err)
			if code != tc.code || retryable != tc.retryable {
				t.Fatalf("classifyFailure(%v) = (%q, %v), want (%q, %v)",
					tc.err, code, retryable, tc.code, tc.retryable)
			}
		})
	}
}

func TestSanitizeErrorFlattensAndCaps(t *testing.T) {
	err := errors.New("line one\nline two\r\n" + strings.Repeat("x", 600))
	got := sanitizeError(err)
	if strings.ContainsAny(got, "\n\r") {
		t.Fatal("sanitized message contains newlines")
	}
	if len(got) != 500 {
		t.Fatalf("len = %d, want 500", len(got))
	}
}
