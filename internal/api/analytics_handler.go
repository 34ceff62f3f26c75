package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sigflow/internal/analytics"
	apperrors "sigflow/internal/errors"
)

const summaryDateLayout = "2006-01-02"

// AnalyticsHandler handles analytics API requests
type AnalyticsHandler struct {
	agg *analytics.Aggregator
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(agg *analytics.Aggregator) *AnalyticsHandler {
	return &AnalyticsHandler{agg: agg}
}

// Summary returns daily summaries for a date range. The range defaults
// to the last seven days.
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	if fromStr := c.Query("from"); fromStr != "" {
		t, err := time.Parse(summaryDateLayout, fromStr)
		if err != nil {
			respondBindError(c, err)
			return
		}
		from = t
	}
	if toStr := c.Query("to"); toStr != "" {
		t, err := time.Parse(summaryDateLayout, toStr)
		if err != nil {
			respondBindError(c, err)
			return
		}
		to = t
	}
	if from.After(to) {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "from must not be after to", nil))
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))

	summaries, err := h.agg.SummaryRange(c.Request.Context(), from, to, ticker)
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to query summaries"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: summaries})
}

// Utilization reports sent versus detected counts over a window
func (h *AnalyticsHandler) Utilization(c *gin.Context) {
	window := 24 * time.Hour
	if windowStr := c.Query("window"); windowStr != "" {
		d, err := time.ParseDuration(windowStr)
		if err != nil || d <= 0 {
			respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "window must be a positive duration", err))
			return
		}
		window = d
	}

	report, err := h.agg.Utilization(c.Request.Context(), window)
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to compute utilization"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// Missed returns skipped CRITICAL and HIGH signals for review
func (h *AnalyticsHandler) Missed(c *gin.Context) {
	days := 7
	if daysStr := c.Query("days"); daysStr != "" {
		n, err := strconv.Atoi(daysStr)
		if err != nil || n < 1 {
			respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "days must be a positive integer", err))
			return
		}
		days = n
	}
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "limit must be a positive integer", err))
			return
		}
		limit = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	entries, err := h.agg.Missed(c.Request.Context(), since, limit)
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to query missed opportunities"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// Rebuild recomputes the summaries for one day, defaulting to
// yesterday
func (h *AnalyticsHandler) Rebuild(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	date := time.Now().UTC().AddDate(0, 0, -1)
	if req.Date != "" {
		t, err := time.Parse(summaryDateLayout, req.Date)
		if err != nil {
			respondBindError(c, err)
			return
		}
		date = t
	}

	summaries, err := h.agg.RebuildDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to rebuild analytics"))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Analytics rebuilt",
		Data: map[string]interface{}{
			"date":   date.Format(summaryDateLayout),
			"groups": len(summaries),
		},
	})
}
