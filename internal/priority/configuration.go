package priority

import (
	"fmt"
	"sync"
	"time"

	"sigflow/internal/scoring"
	"sigflow/internal/signal"
)

// Configuration represents a named set of scoring thresholds and VIP
// lists. At most one configuration is active at a time; evaluation
// fails closed when none is.
type Configuration struct {
	ID            int64              `json:"id" db:"id"`
	Name          string             `json:"name" db:"name"`
	Thresholds    scoring.Thresholds `json:"thresholds"`
	VIPTickers    []string           `json:"vip_tickers" db:"vip_tickers"`
	VIPTimeframes []string           `json:"vip_timeframes" db:"vip_timeframes"`
	MinLevel      signal.Level       `json:"min_level" db:"min_level"`
	IsActive      bool               `json:"is_active" db:"is_active"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// Validate checks configuration invariants before it is stored.
func (c *Configuration) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("configuration name is required")
	}
	t := c.Thresholds
	if t.Low <= 0 {
		return fmt.Errorf("low threshold must be positive, got %d", t.Low)
	}
	if t.Critical <= t.High || t.High <= t.Medium || t.Medium <= t.Low {
		return fmt.Errorf("thresholds must be strictly descending: critical(%d) > high(%d) > medium(%d) > low(%d)",
			t.Critical, t.High, t.Medium, t.Low)
	}
	if _, err := signal.ParseLevel(string(c.MinLevel)); err != nil {
		return fmt.Errorf("invalid minimum level: %w", err)
	}
	return nil
}

// ScoringConfig converts the configuration into scorer inputs.
func (c *Configuration) ScoringConfig() scoring.Config {
	return scoring.Config{
		VIPTickers:    c.VIPTickers,
		VIPTimeframes: c.VIPTimeframes,
		Thresholds:    c.Thresholds,
	}
}

// Holder caches the active configuration snapshot for the dispatch
// path. Only activation and startup loading mutate it; readers get a
// stable pointer they must not modify.
type Holder struct {
	mu     sync.RWMutex
	active *Configuration
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Snapshot returns the active configuration, or nil when none is
// active.
func (h *Holder) Snapshot() *Configuration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// Swap installs cfg as the active snapshot. A nil cfg clears the
// holder so evaluation fails closed.
func (h *Holder) Swap(cfg *Configuration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = cfg
}
