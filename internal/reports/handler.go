package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finsight-backend/internal/documents"
	"finsight-backend/internal/shared/server/middleware"
	"finsight-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the reports service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:     svc,
		limiter: newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches report routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports", h.createReport)
	rg.GET("/reports", h.listReports)
	rg.GET("/reports/:id", h.getReport)
}

type createReportRequest struct {
	DocumentIDs []string `json:"documentIds"`
	Title       string   `json:"title"`
}

func (h *Handler) createReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var body createReportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(body.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	report, err := h.Svc.Create(ctx, userID, body.Title, body.DocumentIDs)
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start report", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"reportId": report.ID,
		"status":   report.Status,
	})
}

func (h *Handler) getReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("id")
	if reportID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "report id is required", nil)
		return
	}

	if !h.limiter.Allow(userID, reportID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too frequently", nil)
		return
	}

	report, err := h.Svc.Get(c.Request.Context(), userID, reportID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch report", nil)
		}
		return
	}

	resp := gin.H{
		"id":          report.ID,
		"documentIds": report.DocumentIDs,
		"status":      report.Status,
		"createdAt":   report.CreatedAt,
	}
	if report.Title != "" {
		resp["title"] = report.Title
	}
	switch report.Status {
	case StatusCompleted:
		resp["result"] = report.Result
		resp["completedAt"] = report.CompletedAt
	case StatusFailed:
		resp["error"] = gin.H{
			"code":      report.ErrorCode,
			"message":   report.ErrorMessage,
			"retryable": report.Retryable,
		}
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listReports(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
			return
		}
	}

	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list reports", nil)
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, report := range list {
		item := gin.H{
			"reportId":    report.ID,
			"documentIds": report.DocumentIDs,
			"status":      report.Status,
			"createdAt":   report.CreatedAt,
		}
		if report.Title != "" {
			item["title"] = report.Title
		}
		if report.Status == StatusCompleted && report.Result != nil {
			if consensusRaw, ok := report.Result["consensus"]; ok {
				if consensusMap, ok := consensusRaw.(map[string]any); ok {
					if summary, ok := consensusMap["summary"]; ok {
						item["summary"] = summary
					}
					if confidence, ok := consensusMap["confidence"]; ok {
						item["confidence"] = confidence
					}
				}
			}
		}
		resp = append(resp, item)
	}

	respond.JSON(c, http.StatusOK, resp)
}
