package signal

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Outcome represents the result of a dispatch evaluation
type Outcome string

const (
	OutcomeSent    Outcome = "SENT"
	OutcomeSkipped Outcome = "SKIPPED"
)

// SkipKind represents the closed set of skip reason kinds
type SkipKind string

const (
	SkipDuplicate      SkipKind = "duplicate"
	SkipBelowThreshold SkipKind = "priority_below_threshold"
	SkipOnlyCritical   SkipKind = "only_critical_mode"
	SkipRateLimit      SkipKind = "rate_limit_exceeded"
	SkipNoActiveConfig SkipKind = "no_active_configuration"
)

// SkipReason represents why a signal was skipped. Detail qualifies the
// kind; for SkipBelowThreshold it carries the signal's own level.
type SkipReason struct {
	Kind   SkipKind `json:"kind"`
	Detail string   `json:"detail,omitempty"`
}

// ReasonDuplicate returns the duplicate skip reason.
func ReasonDuplicate() SkipReason { return SkipReason{Kind: SkipDuplicate} }

// ReasonBelowThreshold returns the threshold skip reason for a level.
func ReasonBelowThreshold(l Level) SkipReason {
	return SkipReason{Kind: SkipBelowThreshold, Detail: l.Lower()}
}

// ReasonOnlyCritical returns the only-critical-mode skip reason.
func ReasonOnlyCritical() SkipReason { return SkipReason{Kind: SkipOnlyCritical} }

// ReasonRateLimit returns the rate-limit skip reason.
func ReasonRateLimit() SkipReason { return SkipReason{Kind: SkipRateLimit} }

// ReasonNoActiveConfig returns the fail-closed skip reason.
func ReasonNoActiveConfig() SkipReason { return SkipReason{Kind: SkipNoActiveConfig} }

// String renders the reason in its stored form, e.g.
// "priority_below_threshold_medium".
func (r SkipReason) String() string {
	if r.Kind == SkipBelowThreshold && r.Detail != "" {
		return fmt.Sprintf("%s_%s", r.Kind, r.Detail)
	}
	return string(r.Kind)
}

// Value implements driver.Valuer so reasons store as their string form.
func (r SkipReason) Value() (driver.Value, error) {
	return r.String(), nil
}

// ScoreBreakdown represents the components of a priority score. Derived
// once at evaluation time and never mutated.
type ScoreBreakdown struct {
	Base         int   `json:"base"`
	Strength     int   `json:"strength"`
	System       int   `json:"system"`
	VIPTicker    int   `json:"vip_ticker"`
	VIPTimeframe int   `json:"vip_timeframe"`
	Urgency      int   `json:"urgency"`
	Pattern      int   `json:"pattern"`
	Total        int   `json:"total"`
	Level        Level `json:"level"`
}

// Decision represents the outcome of evaluating one signal
type Decision struct {
	Outcome     Outcome        `json:"outcome"`
	Reason      *SkipReason    `json:"reason,omitempty"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	DeliveryRef string         `json:"delivery_ref,omitempty"`
}

// Sent reports whether the decision dispatched the signal.
func (d Decision) Sent() bool { return d.Outcome == OutcomeSent }

// ReasonString returns the stored skip reason, empty for SENT decisions.
func (d Decision) ReasonString() string {
	if d.Reason == nil {
		return ""
	}
	return d.Reason.String()
}

// LedgerEntry represents one row of the deduplication ledger: a signal,
// its score breakdown, and the dispatch outcome.
type LedgerEntry struct {
	ID          int64          `json:"id"`
	Ticker      string         `json:"ticker"`
	Timeframe   string         `json:"timeframe"`
	SignalType  string         `json:"signal_type"`
	DetectedAt  time.Time      `json:"detected_at"`
	Strength    Strength       `json:"strength"`
	System      string         `json:"system"`
	Score       int            `json:"score"`
	Level       Level          `json:"level"`
	Outcome     Outcome        `json:"outcome"`
	SkipReason  string         `json:"skip_reason,omitempty"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	DeliveryRef string         `json:"delivery_ref,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Identity returns the deduplication key of the entry.
func (e LedgerEntry) Identity() Identity {
	return Identity{
		Ticker:     e.Ticker,
		Timeframe:  e.Timeframe,
		SignalType: e.SignalType,
		DetectedAt: e.DetectedAt,
	}
}
