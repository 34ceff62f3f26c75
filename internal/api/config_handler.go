package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "sigflow/internal/errors"
	"sigflow/internal/monitor"
	"sigflow/internal/priority"
	"sigflow/internal/scoring"
	"sigflow/internal/signal"
)

// ConfigHandler handles priority configuration API requests
type ConfigHandler struct {
	store   *priority.Store
	holder  *priority.Holder
	metrics *monitor.MetricsCollector
}

// NewConfigHandler creates a new configuration handler
func NewConfigHandler(store *priority.Store, holder *priority.Holder, metrics *monitor.MetricsCollector) *ConfigHandler {
	return &ConfigHandler{
		store:   store,
		holder:  holder,
		metrics: metrics,
	}
}

// ConfigRequest is the create and update payload
type ConfigRequest struct {
	Name          string             `json:"name"`
	Thresholds    scoring.Thresholds `json:"thresholds" binding:"required"`
	VIPTickers    []string           `json:"vip_tickers"`
	VIPTimeframes []string           `json:"vip_timeframes"`
	MinLevel      string             `json:"min_level" binding:"required"`
}

func (r ConfigRequest) toConfiguration(name string) *priority.Configuration {
	return &priority.Configuration{
		Name:          name,
		Thresholds:    r.Thresholds,
		VIPTickers:    r.VIPTickers,
		VIPTimeframes: r.VIPTimeframes,
		MinLevel:      signal.Level(r.MinLevel),
	}
}

func respondStoreError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, priority.ErrNotFound):
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeConfigNotFound, err.Error(), err))
	case errors.Is(err, priority.ErrDuplicate):
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeConflict, err.Error(), err))
	case errors.Is(err, priority.ErrActive):
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeConflict, err.Error(), err))
	default:
		respondError(c, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, message))
	}
}

// List returns all priority configurations
func (h *ConfigHandler) List(c *gin.Context) {
	configs, err := h.store.List(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to list configurations")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: configs})
}

// Get returns one configuration by name
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.store.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondStoreError(c, err, "Failed to get configuration")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: cfg})
}

// GetActive returns the active configuration
func (h *ConfigHandler) GetActive(c *gin.Context) {
	cfg, err := h.store.GetActive(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to get active configuration")
		return
	}
	if cfg == nil {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeNoActiveConfig, "No active configuration", nil))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: cfg})
}

// Create inserts a new inactive configuration
func (h *ConfigHandler) Create(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Name == "" {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "name is required", nil))
		return
	}

	cfg := req.toConfiguration(req.Name)
	if err := cfg.Validate(); err != nil {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeConfigInvalid, err.Error(), err))
		return
	}

	created, err := h.store.Create(c.Request.Context(), cfg)
	if err != nil {
		respondStoreError(c, err, "Failed to create configuration")
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "Configuration created",
		Data:    created,
	})
}

// Update replaces the thresholds, VIP lists and minimum level of a
// configuration. When the active configuration is updated the running
// snapshot is refreshed so the next cycle scores with the new values.
func (h *ConfigHandler) Update(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg := req.toConfiguration(c.Param("name"))
	if err := cfg.Validate(); err != nil {
		respondError(c, apperrors.NewAppError(apperrors.ErrCodeConfigInvalid, err.Error(), err))
		return
	}

	updated, err := h.store.Update(c.Request.Context(), cfg)
	if err != nil {
		respondStoreError(c, err, "Failed to update configuration")
		return
	}

	if updated.IsActive {
		h.holder.Swap(updated)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Configuration updated",
		Data:    updated,
	})
}

// Delete removes an inactive configuration
func (h *ConfigHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		respondStoreError(c, err, "Failed to delete configuration")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "Configuration deleted"})
}

// Activate switches the active configuration and refreshes the running
// snapshot
func (h *ConfigHandler) Activate(c *gin.Context) {
	cfg, err := h.store.Activate(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondStoreError(c, err, "Failed to activate configuration")
		return
	}

	h.holder.Swap(cfg)
	if h.metrics != nil {
		h.metrics.RecordConfigActivation()
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Configuration activated",
		Data:    cfg,
	})
}
