package delivery

import (
	"context"
	"fmt"
	"time"

	"sigflow/internal/cache"
	"sigflow/internal/config"
	"sigflow/internal/logger"
	"sigflow/internal/signal"
)

// Notification represents the payload handed to the delivery
// collaborator for an accepted signal.
type Notification struct {
	Ticker      string                `json:"ticker"`
	Timeframe   string                `json:"timeframe"`
	SignalType  string                `json:"signal_type"`
	DetectedAt  time.Time             `json:"detected_at"`
	Strength    signal.Strength       `json:"strength"`
	System      string                `json:"system"`
	Score       int                   `json:"score"`
	Level       signal.Level          `json:"level"`
	Breakdown   signal.ScoreBreakdown `json:"breakdown"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
}

// NewNotification builds the delivery payload for a scored signal.
func NewNotification(sig signal.Signal, bd signal.ScoreBreakdown, evaluatedAt time.Time) Notification {
	return Notification{
		Ticker:      sig.Ticker,
		Timeframe:   sig.Timeframe,
		SignalType:  sig.SignalType,
		DetectedAt:  sig.DetectedAt,
		Strength:    sig.Strength,
		System:      sig.System,
		Score:       bd.Total,
		Level:       bd.Level,
		Breakdown:   bd,
		EvaluatedAt: evaluatedAt,
	}
}

// Deliverer hands notifications to the external delivery collaborator.
// Deliver returns the collaborator's reference for the notification;
// it is attempted at most once per signal identity, so implementations
// must not retry internally.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) (string, error)
	Name() string
}

// New selects the delivery channel from configuration.
func New(cfg config.DeliveryConfig, redis *cache.RedisCache, log logger.Logger) (Deliverer, error) {
	switch cfg.Channel {
	case "webhook":
		if cfg.Webhook.URL == "" {
			return nil, fmt.Errorf("webhook delivery requires a URL")
		}
		return NewWebhookDeliverer(cfg.Webhook.URL, cfg.Webhook.Timeout), nil
	case "redis_stream":
		if redis == nil {
			return nil, fmt.Errorf("redis_stream delivery requires redis to be enabled")
		}
		return NewStreamDeliverer(redis, cfg.Stream.Name, cfg.Stream.MaxLen), nil
	case "log", "":
		return NewLogDeliverer(log), nil
	default:
		return nil, fmt.Errorf("unknown delivery channel %q", cfg.Channel)
	}
}
