package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sigflow/internal/cache"
	"sigflow/internal/detector"
	"sigflow/internal/dispatch"
	apperrors "sigflow/internal/errors"
	"sigflow/internal/ledger"
	"sigflow/internal/ratelimit"
	"sigflow/internal/scheduler"
	"sigflow/internal/signal"
)

// RecentDecisionsKey is the cache list the dispatcher pushes decisions
// onto and the recent-signals endpoint reads from.
const RecentDecisionsKey = "decisions:recent"

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Handlers contains all API handlers
type Handlers struct {
	Config    *ConfigHandler
	Signals   *SignalHandler
	Dispatch  *DispatchHandler
	Scheduler *SchedulerHandler
	Analytics *AnalyticsHandler
	Watchlist *WatchlistHandler
	WebSocket *WebSocketHandler
}

func respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus(), apperrors.NewErrorResponse(err, c.Request.URL.Path))
}

func respondBindError(c *gin.Context, err error) {
	respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, err.Error(), err))
}

// SignalHandler handles signal ledger API requests
type SignalHandler struct {
	ledger *ledger.Repository
	redis  *cache.RedisCache
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(led *ledger.Repository, redis *cache.RedisCache) *SignalHandler {
	return &SignalHandler{
		ledger: led,
		redis:  redis,
	}
}

// List returns ledger entries matching the query filters
func (h *SignalHandler) List(c *gin.Context) {
	f := ledger.Filter{
		Ticker:    strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
		Timeframe: strings.TrimSpace(c.Query("timeframe")),
	}

	if lvl := c.Query("level"); lvl != "" {
		parsed, err := signal.ParseLevel(lvl)
		if err != nil {
			respondBindError(c, err)
			return
		}
		f.Level = parsed
	}
	if oc := c.Query("outcome"); oc != "" {
		switch outcome := signal.Outcome(strings.ToUpper(oc)); outcome {
		case signal.OutcomeSent, signal.OutcomeSkipped:
			f.Outcome = outcome
		default:
			respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "outcome must be SENT or SKIPPED", nil))
			return
		}
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondBindError(c, err)
			return
		}
		f.Since = t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			respondBindError(c, err)
			return
		}
		f.Until = t
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			respondBindError(c, err)
			return
		}
		f.Limit = n
	}

	entries, err := h.ledger.Query(c.Request.Context(), f)
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to query signals"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// Recent returns the latest dispatch decisions. The cached decision
// list is preferred; the ledger serves as fallback when the cache is
// unavailable or empty.
func (h *SignalHandler) Recent(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "limit must be a positive integer", err))
			return
		}
		limit = n
	}

	if h.redis != nil {
		raw, err := h.redis.GetRecent(c.Request.Context(), RecentDecisionsKey, int64(limit))
		if err == nil && len(raw) > 0 {
			decisions := make([]json.RawMessage, 0, len(raw))
			for _, r := range raw {
				decisions = append(decisions, json.RawMessage(r))
			}
			c.JSON(http.StatusOK, Response{Success: true, Data: decisions})
			return
		}
	}

	entries, err := h.ledger.Query(c.Request.Context(), ledger.Filter{Limit: limit})
	if err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "Failed to query recent decisions"))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// DispatchHandler handles dispatch mode and on-demand check requests
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
	runner     *dispatch.Runner
	limiter    *ratelimit.Window
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(d *dispatch.Dispatcher, r *dispatch.Runner, limiter *ratelimit.Window) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: d,
		runner:     r,
		limiter:    limiter,
	}
}

// GetMode returns the current dispatch mode
func (h *DispatchHandler) GetMode(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"only_critical": h.dispatcher.OnlyCritical(),
		},
	})
}

// SetMode updates the dispatch mode
func (h *DispatchHandler) SetMode(c *gin.Context) {
	var req struct {
		OnlyCritical *bool `json:"only_critical" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	h.dispatcher.SetOnlyCritical(*req.OnlyCritical)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Dispatch mode updated",
		Data: map[string]interface{}{
			"only_critical": h.dispatcher.OnlyCritical(),
		},
	})
}

// CheckPair runs an immediate evaluation for one ticker and timeframe
func (h *DispatchHandler) CheckPair(c *gin.Context) {
	var req struct {
		Ticker    string `json:"ticker" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if _, ok := signal.TimeframeDuration(req.Timeframe); !ok {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "unknown timeframe "+req.Timeframe, nil))
		return
	}

	evaluations, err := h.runner.CheckPair(c.Request.Context(), req.Ticker, req.Timeframe)
	if err != nil {
		var detErr *detector.Error
		if errors.As(err, &detErr) {
			respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDetectorUnavailable, "Detector fetch failed"))
			return
		}
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeInternal, "Failed to check pair"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: evaluations})
}

// LimiterStatus reports the sliding window fill
func (h *DispatchHandler) LimiterStatus(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"used":     h.limiter.Len(now),
			"capacity": h.limiter.Cap(),
			"window":   h.limiter.Window().String(),
		},
	})
}

// SchedulerHandler handles scheduler API requests
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// Status returns the scheduler status
func (h *SchedulerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.scheduler.Status()})
}

// Trigger requests an immediate dispatch cycle
func (h *SchedulerHandler) Trigger(c *gin.Context) {
	if err := h.scheduler.TriggerNow(); err != nil {
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeSchedulerBusy, "Scheduler is not running"))
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Message: "Cycle triggered"})
}

// WatchlistHandler handles watchlist API requests
type WatchlistHandler struct {
	runner *dispatch.Runner
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(r *dispatch.Runner) *WatchlistHandler {
	return &WatchlistHandler{runner: r}
}

// Get returns the monitored pairs
func (h *WatchlistHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.runner.Pairs()})
}

// Replace swaps the whole watchlist
func (h *WatchlistHandler) Replace(c *gin.Context) {
	var req struct {
		Pairs []dispatch.Pair `json:"pairs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	for _, p := range req.Pairs {
		if err := validatePair(p); err != nil {
			respondError(c, err)
			return
		}
	}

	h.runner.SetPairs(req.Pairs)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Watchlist replaced",
		Data:    h.runner.Pairs(),
	})
}

// Add appends one pair to the watchlist
func (h *WatchlistHandler) Add(c *gin.Context) {
	var req dispatch.Pair
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := validatePair(req); err != nil {
		respondError(c, err)
		return
	}

	if !h.runner.AddPair(req) {
		c.JSON(http.StatusOK, Response{
			Success: true,
			Message: "Pair already in watchlist",
			Data:    h.runner.Pairs(),
		})
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "Pair added",
		Data:    h.runner.Pairs(),
	})
}

// Remove drops one pair from the watchlist
func (h *WatchlistHandler) Remove(c *gin.Context) {
	p := dispatch.Pair{
		Ticker:    c.Param("ticker"),
		Timeframe: c.Param("timeframe"),
	}

	if !h.runner.RemovePair(p) {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeNotFound, "Pair not in watchlist", nil))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Pair removed",
		Data:    h.runner.Pairs(),
	})
}

func validatePair(p dispatch.Pair) *apperrors.AppError {
	if strings.TrimSpace(p.Ticker) == "" {
		return apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "ticker is required", nil)
	}
	if _, ok := signal.TimeframeDuration(strings.TrimSpace(p.Timeframe)); !ok {
		return apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "unknown timeframe "+p.Timeframe, nil)
	}
	return nil
}
