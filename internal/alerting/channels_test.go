package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sampleAlert() *Alert {
	return &Alert{
		ID:        "a1",
		Level:     AlertLevelCritical,
		Title:     "dispatch halted",
		Message:   "three consecutive cycle failures",
		Source:    "pipeline",
		Metadata:  map[string]interface{}{"consecutive": 3},
		Timestamp: time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC),
	}
}

func TestWebhookChannelSend(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(&WebhookConfig{Enabled: true, URL: srv.URL})
	if err := ch.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received["level"] != "critical" {
		t.Errorf("unexpected level %v", received["level"])
	}
	if received["title"] != "[CRITICAL] dispatch halted" {
		t.Errorf("unexpected title %v", received["title"])
	}
	if received["message"] != "three consecutive cycle failures" {
		t.Errorf("unexpected message %v", received["message"])
	}
	if received["timestamp"] != "2026-03-02T15:04:05Z" {
		t.Errorf("unexpected timestamp %v", received["timestamp"])
	}
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(&WebhookConfig{Enabled: true, URL: srv.URL})
	if err := ch.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookChannelDisabled(t *testing.T) {
	ch := NewWebhookChannel(&WebhookConfig{Enabled: false, URL: "http://localhost:1"})
	if ch.IsEnabled() {
		t.Error("expected channel to be disabled")
	}
	if err := ch.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error from disabled channel")
	}

	unset := NewWebhookChannel(&WebhookConfig{Enabled: true})
	if unset.IsEnabled() {
		t.Error("expected channel without URL to be disabled")
	}
}

func TestLogChannel(t *testing.T) {
	ch := NewLogChannel(nil)
	if ch.GetName() != "log" {
		t.Errorf("unexpected name %q", ch.GetName())
	}
	if !ch.IsEnabled() {
		t.Error("expected log channel to always be enabled")
	}
	if err := ch.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
