package scoring

import (
	"strings"
	"time"

	"sigflow/internal/signal"
)

// Config holds the tunable scoring inputs taken from the active
// priority configuration.
type Config struct {
	VIPTickers    []string
	VIPTimeframes []string
	Thresholds    Thresholds
}

// Thresholds holds the score cut points for priority levels, strictly
// descending: Critical > High > Medium > Low.
type Thresholds struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
}

// LevelFor returns the highest level whose threshold the score meets or
// exceeds. Scores below the lowest threshold map to MINIMAL.
func (t Thresholds) LevelFor(score int) signal.Level {
	switch {
	case score >= t.Critical:
		return signal.LevelCritical
	case score >= t.High:
		return signal.LevelHigh
	case score >= t.Medium:
		return signal.LevelMedium
	case score >= t.Low:
		return signal.LevelLow
	default:
		return signal.LevelMinimal
	}
}

const (
	baseScore         = 10
	vipTickerBonus    = 15
	vipTimeframeBonus = 10
)

// strengthPoints maps reported strength onto its score component.
// Unknown strengths score zero.
var strengthPoints = map[signal.Strength]int{
	signal.StrengthVeryStrong: 25,
	signal.StrengthStrong:     20,
	signal.StrengthModerate:   15,
	signal.StrengthMedium:     10,
	signal.StrengthWeak:       5,
}

type weightEntry struct {
	match  string
	points int
}

// systemWeights ranks detection systems by reliability. Lookup is a
// case-insensitive substring test in table order, first match wins.
var systemWeights = []weightEntry{
	{"wave trend", 20},
	{"rsi3m3", 18},
	{"divergence", 16},
	{"fast money", 14},
	{"exhaustion", 12},
	{"trend break", 10},
	{"zero line", 8},
}

const defaultSystemWeight = 5

// patternBonuses ranks signal patterns by importance, largest bonus
// first so the first substring hit is also the maximum. Bonuses never
// exceed 30.
var patternBonuses = []weightEntry{
	{"gold buy", 30},
	{"zero line reject", 25},
	{"extreme oversold", 25},
	{"extreme overbought", 25},
	{"fast money", 20},
	{"bullish divergence", 18},
	{"bearish divergence", 18},
	{"hidden divergence", 15},
	{"wt signal", 12},
	{"rsi3m3 entry", 12},
	{"trend break", 10},
	{"cross", 8},
	{"reversal", 6},
}

// urgencyBands maps signal age onto its urgency component. The first
// band whose max age strictly exceeds the age applies; older signals
// score zero. Negative ages fall into the freshest band.
var urgencyBands = []struct {
	maxAge time.Duration
	points int
}{
	{5 * time.Minute, 20},
	{time.Hour, 16},
	{4 * time.Hour, 12},
	{24 * time.Hour, 8},
	{7 * 24 * time.Hour, 4},
}

// Scorer computes priority score breakdowns for signals
type Scorer struct {
	vipTickers    map[string]struct{}
	vipTimeframes map[string]struct{}
	thresholds    Thresholds
}

// NewScorer creates a scorer from a scoring configuration.
func NewScorer(cfg Config) *Scorer {
	s := &Scorer{
		vipTickers:    make(map[string]struct{}, len(cfg.VIPTickers)),
		vipTimeframes: make(map[string]struct{}, len(cfg.VIPTimeframes)),
		thresholds:    cfg.Thresholds,
	}
	for _, t := range cfg.VIPTickers {
		s.vipTickers[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	for _, tf := range cfg.VIPTimeframes {
		s.vipTimeframes[strings.TrimSpace(tf)] = struct{}{}
	}
	return s
}

// Thresholds returns the level cut points the scorer applies.
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score calculates the priority breakdown for a signal evaluated at
// now. Pure and deterministic: identical inputs yield an identical
// breakdown, with only the urgency component depending on the
// evaluation instant. Unknown strength or system values resolve to
// default components rather than failing.
func (s *Scorer) Score(sig signal.Signal, now time.Time) signal.ScoreBreakdown {
	bd := signal.ScoreBreakdown{Base: baseScore}

	bd.Strength = strengthPoints[sig.Strength]
	bd.System = systemPoints(sig.System)

	if _, ok := s.vipTickers[strings.ToUpper(sig.Ticker)]; ok {
		bd.VIPTicker = vipTickerBonus
	}
	if _, ok := s.vipTimeframes[sig.Timeframe]; ok {
		bd.VIPTimeframe = vipTimeframeBonus
	}

	bd.Urgency = urgencyPoints(now.Sub(sig.DetectedAt))
	bd.Pattern = patternPoints(sig.SignalType, sig.Description)

	bd.Total = bd.Base + bd.Strength + bd.System + bd.VIPTicker +
		bd.VIPTimeframe + bd.Urgency + bd.Pattern
	if bd.Total < 0 {
		bd.Total = 0
	}
	bd.Level = s.thresholds.LevelFor(bd.Total)

	return bd
}

func systemPoints(system string) int {
	normalized := signal.NormalizeForMatch(system)
	for _, entry := range systemWeights {
		if strings.Contains(normalized, entry.match) {
			return entry.points
		}
	}
	return defaultSystemWeight
}

func urgencyPoints(age time.Duration) int {
	for _, band := range urgencyBands {
		if age < band.maxAge {
			return band.points
		}
	}
	return 0
}

func patternPoints(signalType, description string) int {
	st := signal.NormalizeForMatch(signalType)
	desc := signal.NormalizeForMatch(description)
	for _, entry := range patternBonuses {
		if strings.Contains(st, entry.match) || strings.Contains(desc, entry.match) {
			return entry.points
		}
	}
	return 0
}
