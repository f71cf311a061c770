package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubStore struct {
	saved map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{saved: make(map[string][]byte)}
}

func (s *stubStore) Save(ctx context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := userID + "/" + fileName
	s.saved[key] = data
	return key, int64(len(data)), "application/octet-stream", nil
}

func (s *stubStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	data, ok := s.saved[storageKey]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := NewMemoryRepo()
	svc := &Service{Store: newStubStore(), Repo: repo, StorageProvider: "local"}
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router, repo
}

func multipartBody(t *testing.T, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadCSVDocument(t *testing.T) {
	router, repo := newTestRouter(t)

	body, contentType := multipartBody(t, "q1.csv", []byte("revenue\n100\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", resp.Code, resp.Body.String())
	}

	var parsed DocumentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.FileType != "csv" {
		t.Fatalf("fileType = %q", parsed.FileType)
	}

	stored, err := repo.GetByID(context.Background(), "user-1", parsed.DocumentID)
	if err != nil {
		t.Fatalf("document not persisted: %v", err)
	}
	if stored.FileName != "q1.csv" {
		t.Fatalf("stored file name = %q", stored.FileName)
	}
}

func TestUploadUnsupportedFormatRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartBody(t, "macros.docm", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.Code)
	}
}

func TestGetDocumentScopedToOwner(t *testing.T) {
	router, repo := newTestRouter(t)

	if err := repo.Create(context.Background(), Document{
		ID: "doc-1", UserID: "someone-else", FileName: "other.csv", FileType: "csv",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign document", resp.Code)
	}
}

func TestListDocumentsNewestFirst(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, name := range []string{"a.csv", "b.xlsx"} {
		body, contentType := multipartBody(t, name, []byte("revenue\n1\n"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", contentType)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("upload %s: status %d", name, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var parsed []DocumentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(parsed))
	}
}
