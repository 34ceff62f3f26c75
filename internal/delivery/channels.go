package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sigflow/internal/cache"
	"sigflow/internal/logger"
)

// WebhookDeliverer posts notifications to an HTTP endpoint
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

// NewWebhookDeliverer creates a webhook delivery channel.
func NewWebhookDeliverer(url string, timeout time.Duration) *WebhookDeliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDeliverer{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts the notification and returns the reference the
// endpoint reports. Endpoints that answer 2xx without a parseable id
// get a generated reference so the ledger still records the send.
func (w *WebhookDeliverer) Deliver(ctx context.Context, n Notification) (string, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.ID != "" {
		return body.ID, nil
	}
	return uuid.New().String(), nil
}

// Name returns the channel name.
func (w *WebhookDeliverer) Name() string {
	return "webhook"
}

// StreamDeliverer appends notifications to a redis stream
type StreamDeliverer struct {
	redis  *cache.RedisCache
	stream string
	maxLen int64
}

// NewStreamDeliverer creates a redis stream delivery channel.
func NewStreamDeliverer(redis *cache.RedisCache, stream string, maxLen int64) *StreamDeliverer {
	if stream == "" {
		stream = "sigflow:notifications"
	}
	return &StreamDeliverer{
		redis:  redis,
		stream: stream,
		maxLen: maxLen,
	}
}

// Deliver appends the notification and returns the stream entry ID as
// the delivery reference.
func (s *StreamDeliverer) Deliver(ctx context.Context, n Notification) (string, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("failed to encode notification: %w", err)
	}

	values := map[string]interface{}{
		"ticker":      n.Ticker,
		"timeframe":   n.Timeframe,
		"signal_type": n.SignalType,
		"level":       string(n.Level),
		"score":       n.Score,
		"payload":     string(payload),
	}

	id, err := s.redis.AddToStream(ctx, s.stream, s.maxLen, values)
	if err != nil {
		return "", fmt.Errorf("stream delivery failed: %w", err)
	}
	return id, nil
}

// Name returns the channel name.
func (s *StreamDeliverer) Name() string {
	return "redis_stream"
}

// LogDeliverer writes notifications to the application log, used in
// development and as a safe default when no collaborator is wired.
type LogDeliverer struct {
	log logger.Logger
}

// NewLogDeliverer creates a log delivery channel.
func NewLogDeliverer(log logger.Logger) *LogDeliverer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogDeliverer{log: log}
}

// Deliver logs the notification and returns a generated reference.
func (l *LogDeliverer) Deliver(ctx context.Context, n Notification) (string, error) {
	ref := uuid.New().String()
	l.log.WithFields(map[string]interface{}{
		"ticker":       n.Ticker,
		"timeframe":    n.Timeframe,
		"signal_type":  n.SignalType,
		"level":        string(n.Level),
		"score":        n.Score,
		"delivery_ref": ref,
	}).Info("signal notification")
	return ref, nil
}

// Name returns the channel name.
func (l *LogDeliverer) Name() string {
	return "log"
}
