package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sigflow/internal/logger"
)

// AlertChannel represents a destination for operational alerts
type AlertChannel interface {
	Send(ctx context.Context, alert *Alert) error
	GetName() string
	IsEnabled() bool
}

// LogChannel writes alerts to the application log. It is always
// enabled, so every deployment has at least one alert destination.
type LogChannel struct {
	log logger.Logger
}

// NewLogChannel creates a log alert channel
func NewLogChannel(log logger.Logger) *LogChannel {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogChannel{log: log}
}

// Send writes the alert at a log level matching its severity
func (lc *LogChannel) Send(ctx context.Context, alert *Alert) error {
	fields := map[string]interface{}{
		"alert_id": alert.ID,
		"level":    string(alert.Level),
		"source":   alert.Source,
	}
	for k, v := range alert.Metadata {
		fields[k] = v
	}

	entry := lc.log.WithFields(fields)
	msg := fmt.Sprintf("%s: %s", alert.Title, alert.Message)
	switch alert.Level {
	case AlertLevelCritical, AlertLevelError:
		entry.Error(msg)
	case AlertLevelWarning:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	return nil
}

// GetName returns the channel name
func (lc *LogChannel) GetName() string { return "log" }

// IsEnabled returns whether the channel is enabled
func (lc *LogChannel) IsEnabled() bool { return true }

// WebhookConfig represents webhook channel configuration
type WebhookConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// WebhookChannel posts alerts as JSON to an operator-provided endpoint
type WebhookChannel struct {
	config *WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a webhook alert channel
func NewWebhookChannel(config *WebhookConfig) *WebhookChannel {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the alert to the configured endpoint
func (wc *WebhookChannel) Send(ctx context.Context, alert *Alert) error {
	if !wc.IsEnabled() {
		return fmt.Errorf("webhook channel is disabled")
	}

	payload := map[string]interface{}{
		"id":        alert.ID,
		"level":     string(alert.Level),
		"title":     fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Level)), alert.Title),
		"message":   alert.Message,
		"source":    alert.Source,
		"metadata":  alert.Metadata,
		"timestamp": alert.Timestamp.Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.config.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// GetName returns the channel name
func (wc *WebhookChannel) GetName() string { return "webhook" }

// IsEnabled returns whether the channel is enabled
func (wc *WebhookChannel) IsEnabled() bool {
	return wc.config.Enabled && wc.config.URL != ""
}
