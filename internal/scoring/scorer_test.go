package scoring

import (
	"testing"
	"time"

	"sigflow/internal/signal"
)

func testConfig() Config {
	return Config{
		VIPTickers:    []string{"SPY", "QQQ", "AAPL", "TSLA", "NVDA"},
		VIPTimeframes: []string{"1d", "4h"},
		Thresholds:    Thresholds{Critical: 90, High: 70, Medium: 50, Low: 30},
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewScorer(testConfig())
	now := time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

	sig := signal.Signal{
		Ticker:     "TSLA",
		Timeframe:  "4h",
		SignalType: "BULLISH_DIVERGENCE",
		DetectedAt: now.Add(-10 * time.Minute),
		Strength:   signal.StrengthStrong,
		System:     "Divergence Detection",
	}

	first := scorer.Score(sig, now)
	second := scorer.Score(sig, now)

	if first != second {
		t.Errorf("Expected identical breakdowns, got %+v and %+v", first, second)
	}
}

func TestScoreCriticalScenario(t *testing.T) {
	cfg := testConfig()
	cfg.VIPTimeframes = append(cfg.VIPTimeframes, "1h")
	scorer := NewScorer(cfg)

	now := time.Now()
	sig := signal.Signal{
		Ticker:     "AAPL",
		Timeframe:  "1h",
		SignalType: "WT_BUY",
		DetectedAt: now.Add(-time.Minute),
		Strength:   signal.StrengthVeryStrong,
		System:     "Wave Trend",
	}

	bd := scorer.Score(sig, now)

	if bd.Total < 90 {
		t.Errorf("Expected total >= 90, got %d (%+v)", bd.Total, bd)
	}
	if bd.Level != signal.LevelCritical {
		t.Errorf("Expected level CRITICAL, got %s", bd.Level)
	}
	if bd.Total != bd.Base+bd.Strength+bd.System+bd.VIPTicker+bd.VIPTimeframe+bd.Urgency+bd.Pattern {
		t.Errorf("Total %d does not equal component sum", bd.Total)
	}
}

func TestStrengthComponent(t *testing.T) {
	scorer := NewScorer(testConfig())
	now := time.Now()

	tests := []struct {
		strength signal.Strength
		expected int
	}{
		{signal.StrengthVeryStrong, 25},
		{signal.StrengthStrong, 20},
		{signal.StrengthModerate, 15},
		{signal.StrengthMedium, 10},
		{signal.StrengthWeak, 5},
		{signal.StrengthUnknown, 0},
		{signal.Strength("garbage"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.strength), func(t *testing.T) {
			sig := signal.Signal{
				Ticker:     "MSFT",
				Timeframe:  "1h",
				SignalType: "PLAIN",
				DetectedAt: now,
				Strength:   tt.strength,
			}
			bd := scorer.Score(sig, now)
			if bd.Strength != tt.expected {
				t.Errorf("Expected strength component %d, got %d", tt.expected, bd.Strength)
			}
		})
	}
}

func TestSystemComponent(t *testing.T) {
	tests := []struct {
		system   string
		expected int
	}{
		{"Wave Trend", 20},
		{"wave trend oscillator", 20},
		{"RSI3M3+", 18},
		{"Divergence Detection", 16},
		{"Fast Money", 14},
		{"Trend Exhaustion", 12},
		{"RSI Trend Break", 10},
		{"Zero Line", 8},
		{"Custom Indicator", 5},
		{"", 5},
	}

	for _, tt := range tests {
		t.Run(tt.system, func(t *testing.T) {
			if got := systemPoints(tt.system); got != tt.expected {
				t.Errorf("Expected system weight %d for %q, got %d", tt.expected, tt.system, got)
			}
		})
	}
}

func TestVIPComponents(t *testing.T) {
	scorer := NewScorer(testConfig())
	now := time.Now()

	base := signal.Signal{
		Timeframe:  "1h",
		SignalType: "PLAIN",
		DetectedAt: now,
		Strength:   signal.StrengthWeak,
	}

	vip := base
	vip.Ticker = "aapl"
	if bd := scorer.Score(vip, now); bd.VIPTicker != 15 {
		t.Errorf("Expected VIP ticker bonus 15 for aapl, got %d", bd.VIPTicker)
	}

	ordinary := base
	ordinary.Ticker = "MSFT"
	if bd := scorer.Score(ordinary, now); bd.VIPTicker != 0 {
		t.Errorf("Expected no VIP ticker bonus for MSFT, got %d", bd.VIPTicker)
	}

	daily := base
	daily.Ticker = "MSFT"
	daily.Timeframe = "1d"
	if bd := scorer.Score(daily, now); bd.VIPTimeframe != 10 {
		t.Errorf("Expected VIP timeframe bonus 10 for 1d, got %d", bd.VIPTimeframe)
	}

	hourly := base
	hourly.Ticker = "MSFT"
	if bd := scorer.Score(hourly, now); bd.VIPTimeframe != 0 {
		t.Errorf("Expected no VIP timeframe bonus for 1h, got %d", bd.VIPTimeframe)
	}
}

func TestUrgencyBands(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected int
	}{
		{"one minute", time.Minute, 20},
		{"just under five minutes", 5*time.Minute - time.Second, 20},
		{"exactly five minutes", 5 * time.Minute, 16},
		{"thirty minutes", 30 * time.Minute, 16},
		{"exactly one hour", time.Hour, 12},
		{"two hours", 2 * time.Hour, 12},
		{"exactly four hours", 4 * time.Hour, 8},
		{"twelve hours", 12 * time.Hour, 8},
		{"exactly one day", 24 * time.Hour, 4},
		{"three days", 72 * time.Hour, 4},
		{"exactly seven days", 7 * 24 * time.Hour, 0},
		{"eight days", 8 * 24 * time.Hour, 0},
		{"future detection", -30 * time.Second, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := urgencyPoints(tt.age); got != tt.expected {
				t.Errorf("Expected urgency %d for age %s, got %d", tt.expected, tt.age, got)
			}
		})
	}
}

func TestPatternComponent(t *testing.T) {
	tests := []struct {
		signalType  string
		description string
		expected    int
	}{
		{"WT_GOLD_BUY", "", 30},
		{"ZERO_LINE_REJECT", "", 25},
		{"Extreme Oversold Alert", "", 25},
		{"EXTREME_OVERBOUGHT", "", 25},
		{"FAST_MONEY_LONG", "", 20},
		{"HIDDEN_BULLISH_DIVERGENCE", "", 18},
		{"HIDDEN_DIVERGENCE", "", 15},
		{"RSI3M3_ENTRY", "", 12},
		{"TREND_BREAK", "", 10},
		{"Bullish Cross", "", 8},
		{"Trend Reversal", "", 6},
		{"PLAIN", "", 0},
		{"ALERT", "Fast Money long setup", 20},
	}

	for _, tt := range tests {
		t.Run(tt.signalType, func(t *testing.T) {
			if got := patternPoints(tt.signalType, tt.description); got != tt.expected {
				t.Errorf("Expected pattern bonus %d for %q/%q, got %d",
					tt.expected, tt.signalType, tt.description, got)
			}
		})
	}
}

func TestLevelPartition(t *testing.T) {
	th := Thresholds{Critical: 90, High: 70, Medium: 50, Low: 30}

	tests := []struct {
		score    int
		expected signal.Level
	}{
		{120, signal.LevelCritical},
		{90, signal.LevelCritical},
		{89, signal.LevelHigh},
		{70, signal.LevelHigh},
		{69, signal.LevelMedium},
		{55, signal.LevelMedium},
		{50, signal.LevelMedium},
		{49, signal.LevelLow},
		{30, signal.LevelLow},
		{29, signal.LevelMinimal},
		{0, signal.LevelMinimal},
	}

	for _, tt := range tests {
		if got := th.LevelFor(tt.score); got != tt.expected {
			t.Errorf("Expected level %s for score %d, got %s", tt.expected, tt.score, got)
		}
	}
}

func TestScoreUnknownInputsDoNotFail(t *testing.T) {
	scorer := NewScorer(testConfig())
	now := time.Now()

	sig := signal.Signal{
		Ticker:     "XYZ",
		Timeframe:  "2h",
		SignalType: "SOMETHING_NEW",
		DetectedAt: now.Add(-90 * 24 * time.Hour),
		Strength:   signal.Strength("off the scale"),
		System:     "experimental scanner",
	}

	bd := scorer.Score(sig, now)

	// base 10 + default system 5, nothing else applies
	if bd.Total != 15 {
		t.Errorf("Expected total 15, got %d (%+v)", bd.Total, bd)
	}
	if bd.Level != signal.LevelMinimal {
		t.Errorf("Expected level MINIMAL, got %s", bd.Level)
	}
}

func BenchmarkScore(b *testing.B) {
	scorer := NewScorer(testConfig())
	now := time.Now()
	sig := signal.Signal{
		Ticker:     "NVDA",
		Timeframe:  "4h",
		SignalType: "BULLISH_DIVERGENCE",
		DetectedAt: now.Add(-20 * time.Minute),
		Strength:   signal.StrengthStrong,
		System:     "Divergence Detection",
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = scorer.Score(sig, now)
	}
}
