package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func postReport(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateReportAccepted(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Queue = &captureQueue{}
	doc := seedDocument(t, svc, "user-1", "q.csv", quarterlyCSV)
	router := newTestRouter(t, svc)

	resp := postReport(t, router, gin.H{"documentIds": []string{doc.ID}, "title": "Q4"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", resp.Code, resp.Body.String())
	}

	var parsed map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed["status"] != StatusQueued {
		t.Fatalf("status = %v", parsed["status"])
	}
	if parsed["reportId"] == "" {
		t.Fatal("missing reportId")
	}
}

func TestCreateReportRequiresDocuments(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(t, svc)

	resp := postReport(t, router, gin.H{"documentIds": []string{}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestCreateReportUnknownDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(t, svc)

	resp := postReport(t, router, gin.H{"documentIds": []string{"no-such"}})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestGetReportPollingIsRateLimited(t *testing.T) {
	svc, repo, _ := newTestService(t)
	report := Report{ID: "report-1", UserID: "user-1", Status: StatusProcessing, CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := newTestRouter(t, svc)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/reports/report-1", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first poll status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/reports/report-1", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second poll status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestGetFailedReportExposesClassifiedError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	completedAt := time.Now().UTC()
	report := Report{
		ID:           "report-1",
		UserID:       "user-1",
		Status:       StatusFailed,
		ErrorCode:    ErrorCodeStorage,
		ErrorMessage: "document lookup: not found",
		Retryable:    true,
		CompletedAt:  &completedAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := newTestRouter(t, svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/reports/report-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var parsed map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	errObj, ok := parsed["error"].(map[string]any)
	if !ok {
		t.Fatalf("error = %T", parsed["error"])
	}
	if errObj["code"] != ErrorCodeStorage {
		t.Fatalf("code = %v", errObj["code"])
	}
	if errObj["retryable"] != true {
		t.Fatalf("retryable = %v", errObj["retryable"])
	}
}

func TestListReportsGuestRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := NewHandler(svc)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "guest:abc")
		c.Set("isGuest", true)
		c.Next()
	})
	handler.RegisterRoutes(router.Group("/api/v1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Code)
	}
}

func TestListReportsIncludesConsensusSummary(t *testing.T) {
	svc, repo, _ := newTestService(t)
	completedAt := time.Now().UTC()
	report := Report{
		ID:     "report-1",
		UserID: "user-1",
		Status: StatusCompleted,
		Result: map[string]any{
			"consensus": map[string]any{
				"summary":    "Overall financial health appears strong",
				"confidence": "High",
			},
		},
		CompletedAt: &completedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := newTestRouter(t, svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var parsed []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 report, got %d", len(parsed))
	}
	if parsed[0]["summary"] != "Overall financial health appears strong" {
		t.Fatalf("summary = %v", parsed[0]["summary"])
	}
	if parsed[0]["confidence"] != "High" {
		t.Fatalf("confidence = %v", parsed[0]["confidence"])
	}
}
