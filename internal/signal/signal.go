package signal

import (
	"fmt"
	"strings"
	"time"
)

// Strength represents the ordinal strength reported by the detector
type Strength string

const (
	StrengthVeryStrong Strength = "VERY_STRONG"
	StrengthStrong     Strength = "STRONG"
	StrengthModerate   Strength = "MODERATE"
	StrengthMedium     Strength = "MEDIUM"
	StrengthWeak       Strength = "WEAK"
	StrengthUnknown    Strength = "UNKNOWN"
)

// ParseStrength normalizes a detector-reported strength token. Unknown
// tokens resolve to StrengthUnknown rather than failing.
func ParseStrength(s string) Strength {
	switch normalizeToken(s) {
	case "very strong":
		return StrengthVeryStrong
	case "strong":
		return StrengthStrong
	case "moderate":
		return StrengthModerate
	case "medium":
		return StrengthMedium
	case "weak":
		return StrengthWeak
	default:
		return StrengthUnknown
	}
}

// Level represents a priority level derived from a score
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
	LevelMinimal  Level = "MINIMAL"
)

// Levels lists all priority levels from highest to lowest.
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow, LevelMinimal}

// Rank returns the ordering of a level, highest first (CRITICAL=0).
// Unknown levels rank below MINIMAL.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return len(Levels)
}

// AtLeast reports whether l is at or above min in priority order.
func (l Level) AtLeast(min Level) bool {
	return l.Rank() <= min.Rank()
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	for _, lv := range Levels {
		if strings.EqualFold(s, string(lv)) {
			return lv, nil
		}
	}
	return "", fmt.Errorf("unknown priority level %q", s)
}

// Lower returns the level name in lowercase, as used in skip reasons.
func (l Level) Lower() string {
	return strings.ToLower(string(l))
}

// Signal represents a single detected trading event reported by the
// external detector. Immutable once received.
type Signal struct {
	Ticker      string    `json:"ticker"`
	Timeframe   string    `json:"timeframe"`
	SignalType  string    `json:"signal_type"`
	DetectedAt  time.Time `json:"detected_at"`
	Strength    Strength  `json:"strength"`
	System      string    `json:"system"`
	Description string    `json:"description,omitempty"`
}

// Identity represents the deduplication key of a signal. No two ledger
// entries may share it.
type Identity struct {
	Ticker     string    `json:"ticker"`
	Timeframe  string    `json:"timeframe"`
	SignalType string    `json:"signal_type"`
	DetectedAt time.Time `json:"detected_at"`
}

// Identity returns the deduplication key of the signal.
func (s Signal) Identity() Identity {
	return Identity{
		Ticker:     s.Ticker,
		Timeframe:  s.Timeframe,
		SignalType: s.SignalType,
		DetectedAt: s.DetectedAt,
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", id.Ticker, id.Timeframe, id.SignalType,
		id.DetectedAt.UTC().Format(time.RFC3339))
}

// Validate checks the fields required for a signal to be evaluated.
func (s Signal) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("signal missing ticker")
	}
	if s.Timeframe == "" {
		return fmt.Errorf("signal missing timeframe")
	}
	if s.SignalType == "" {
		return fmt.Errorf("signal missing signal_type")
	}
	if s.DetectedAt.IsZero() {
		return fmt.Errorf("signal missing detected_at")
	}
	return nil
}

// Timeframes lists the interval tokens the pipeline monitors, fastest
// first, with their candle durations.
var Timeframes = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration returns the candle duration for a timeframe token.
func TimeframeDuration(tf string) (time.Duration, bool) {
	d, ok := Timeframes[strings.ToLower(tf)]
	return d, ok
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}

// NormalizeForMatch lowercases a token and folds underscores to spaces,
// the form used by pattern and system lookups.
func NormalizeForMatch(s string) string {
	return normalizeToken(s)
}
