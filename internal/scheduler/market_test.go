package scheduler

import (
	"testing"
	"time"

	"sigflow/internal/config"
)

func nySession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(config.MarketSessionConfig{
		Open: "09:30", Close: "16:00", Timezone: "America/New_York",
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

// ny builds a time on Wednesday 2026-01-14 unless the day is overridden.
func ny(t *testing.T, s *Session, day, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, time.January, day, hour, min, 0, 0, s.Location())
}

func TestSessionContains(t *testing.T) {
	s := nySession(t)
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid session", ny(t, s, 14, 10, 0), true},
		{"at open", ny(t, s, 14, 9, 30), true},
		{"minute before open", ny(t, s, 14, 9, 29), false},
		{"last minute", ny(t, s, 14, 15, 59), true},
		{"at close", ny(t, s, 14, 16, 0), false},
		{"saturday", ny(t, s, 17, 12, 0), false},
		{"sunday", ny(t, s, 18, 12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestNextOpen(t *testing.T) {
	s := nySession(t)
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before open same day", ny(t, s, 14, 8, 0), ny(t, s, 14, 9, 30)},
		{"mid session rolls to next day", ny(t, s, 14, 10, 0), ny(t, s, 15, 9, 30)},
		{"friday evening rolls to monday", ny(t, s, 16, 17, 0), ny(t, s, 19, 9, 30)},
		{"saturday rolls to monday", ny(t, s, 17, 12, 0), ny(t, s, 19, 9, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextOpen(tt.at); !got.Equal(tt.want) {
				t.Errorf("NextOpen(%s) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}

func TestNextBoundary(t *testing.T) {
	s := nySession(t)
	tests := []struct {
		name string
		at   time.Time
		tf   time.Duration
		want time.Time
	}{
		{"15m mid candle", ny(t, s, 14, 10, 7), 15 * time.Minute, ny(t, s, 14, 10, 15)},
		{"15m on a mark is strict", ny(t, s, 14, 10, 15), 15 * time.Minute, ny(t, s, 14, 10, 30)},
		{"30m", ny(t, s, 14, 10, 7), 30 * time.Minute, ny(t, s, 14, 10, 30)},
		{"30m second half", ny(t, s, 14, 10, 40), 30 * time.Minute, ny(t, s, 14, 11, 0)},
		{"1h", ny(t, s, 14, 10, 7), time.Hour, ny(t, s, 14, 11, 0)},
		{"1h on the hour is strict", ny(t, s, 14, 10, 0), time.Hour, ny(t, s, 14, 11, 0)},
		{"3h rounds to divisible hour", ny(t, s, 14, 10, 7), 3 * time.Hour, ny(t, s, 14, 12, 0)},
		{"3h afternoon", ny(t, s, 14, 13, 30), 3 * time.Hour, ny(t, s, 14, 15, 0)},
		{"4h", ny(t, s, 14, 13, 0), 4 * time.Hour, ny(t, s, 14, 16, 0)},
		{"6h", ny(t, s, 14, 13, 0), 6 * time.Hour, ny(t, s, 14, 18, 0)},
		{"1d closes with session", ny(t, s, 14, 10, 7), 24 * time.Hour, ny(t, s, 14, 16, 0)},
		{"1d after close rolls forward", ny(t, s, 14, 17, 0), 24 * time.Hour, ny(t, s, 15, 16, 0)},
		{"1d friday evening rolls to monday", ny(t, s, 16, 17, 0), 24 * time.Hour, ny(t, s, 19, 16, 0)},
		{"1d saturday rolls to monday", ny(t, s, 17, 12, 0), 24 * time.Hour, ny(t, s, 19, 16, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextBoundary(tt.at, tt.tf); !got.Equal(tt.want) {
				t.Errorf("NextBoundary(%s, %s) = %s, want %s", tt.at, tt.tf, got, tt.want)
			}
		})
	}
}

func TestNewSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MarketSessionConfig
	}{
		{"bad timezone", config.MarketSessionConfig{Open: "09:30", Close: "16:00", Timezone: "Mars/Olympus"}},
		{"bad open", config.MarketSessionConfig{Open: "9h30", Close: "16:00", Timezone: "UTC"}},
		{"bad close", config.MarketSessionConfig{Open: "09:30", Close: "25:00", Timezone: "UTC"}},
		{"close before open", config.MarketSessionConfig{Open: "16:00", Close: "09:30", Timezone: "UTC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSession(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
