package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sigflow/internal/logger"
	"sigflow/internal/signal"
)

// consecutiveFailureAlert is how many failed cycles in a row trigger a
// critical alert.
const consecutiveFailureAlert = 3

// Pair is one monitored ticker and timeframe combination.
type Pair struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
}

func (p Pair) String() string {
	return p.Ticker + "/" + p.Timeframe
}

// Fetcher retrieves the current signals for a pair from the detector.
type Fetcher interface {
	Fetch(ctx context.Context, ticker, timeframe string) ([]signal.Signal, error)
}

// CycleStats summarizes one check cycle.
type CycleStats struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Pairs      int            `json:"pairs"`
	PairErrors int            `json:"pair_errors"`
	Fetched    int            `json:"fetched"`
	Sent       int            `json:"sent"`
	Skipped    int            `json:"skipped"`
	Errors     int            `json:"errors"`
	Aborted    bool           `json:"aborted"`
	Reasons    map[string]int `json:"reasons,omitempty"`
}

// Runner walks the watchlist, fetching and evaluating signals pair by
// pair. A fetch failure skips that pair for the cycle; a ledger failure
// aborts the rest of the cycle, since later evaluations would fail the
// same way and missed signals are picked up on the next pass.
type Runner struct {
	dispatcher *Dispatcher
	fetcher    Fetcher
	alerter    Alerter
	log        logger.Logger

	mu       sync.RWMutex
	pairs    []Pair
	failures int
	last     *CycleStats
}

// NewRunner creates a runner over the given watchlist.
func NewRunner(d *Dispatcher, f Fetcher, pairs []Pair, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	r := &Runner{dispatcher: d, fetcher: f, log: log}
	r.SetPairs(pairs)
	return r
}

// SetAlerter attaches the operational alert sink.
func (r *Runner) SetAlerter(a Alerter) {
	r.alerter = a
}

// Pairs returns a copy of the current watchlist.
func (r *Runner) Pairs() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// SetPairs replaces the watchlist, dropping duplicates and blanks.
func (r *Runner) SetPairs(pairs []Pair) {
	cleaned := make([]Pair, 0, len(pairs))
	seen := make(map[Pair]struct{}, len(pairs))
	for _, p := range pairs {
		p = normalizePair(p)
		if p.Ticker == "" || p.Timeframe == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}
	r.mu.Lock()
	r.pairs = cleaned
	r.mu.Unlock()
}

// AddPair appends a pair to the watchlist. Returns false when the pair
// is already present or invalid.
func (r *Runner) AddPair(p Pair) bool {
	p = normalizePair(p)
	if p.Ticker == "" || p.Timeframe == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pairs {
		if existing == p {
			return false
		}
	}
	r.pairs = append(r.pairs, p)
	return true
}

// RemovePair removes a pair from the watchlist. Returns false when the
// pair was not present.
func (r *Runner) RemovePair(p Pair) bool {
	p = normalizePair(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.pairs {
		if existing == p {
			r.pairs = append(r.pairs[:i], r.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// LastCycle returns the most recent cycle stats, if any cycle has run.
func (r *Runner) LastCycle() (CycleStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return CycleStats{}, false
	}
	return *r.last, true
}

// RunCycle fetches and evaluates every watchlist pair once.
func (r *Runner) RunCycle(ctx context.Context) CycleStats {
	started := time.Now()
	stats := CycleStats{
		CycleID:   uuid.New().String(),
		StartedAt: started,
		Reasons:   make(map[string]int),
	}
	log := r.log.WithField("cycle_id", stats.CycleID)

	pairs := r.Pairs()
	stats.Pairs = len(pairs)

loop:
	for _, p := range pairs {
		select {
		case <-ctx.Done():
			stats.Aborted = true
			break loop
		default:
		}

		signals, err := r.fetcher.Fetch(ctx, p.Ticker, p.Timeframe)
		if err != nil {
			log.Warn("fetch failed for pair", "pair", p.String(), "error", err)
			stats.PairErrors++
			continue
		}
		stats.Fetched += len(signals)

		for _, sig := range signals {
			dec, err := r.dispatcher.Evaluate(ctx, sig)
			if err != nil {
				log.Error("evaluation failed, deferring rest of cycle",
					"pair", p.String(), "signal_type", sig.SignalType, "error", err)
				stats.Errors++
				stats.Aborted = true
				break loop
			}
			if dec.Sent() {
				stats.Sent++
			} else {
				stats.Skipped++
				stats.Reasons[dec.ReasonString()]++
			}
		}
	}

	stats.Duration = time.Since(started)

	failed := stats.Aborted || (stats.Pairs > 0 && stats.PairErrors == stats.Pairs)
	r.trackFailures(ctx, failed)

	if n := stats.Reasons[string(signal.SkipNoActiveConfig)]; n > 0 && r.alerter != nil {
		r.alerter.Critical(ctx, "No active configuration",
			fmt.Sprintf("%d signals skipped fail-closed this cycle", n),
			map[string]interface{}{"cycle_id": stats.CycleID})
	}

	log.Info("check cycle finished",
		"pairs", stats.Pairs, "fetched", stats.Fetched, "sent", stats.Sent,
		"skipped", stats.Skipped, "pair_errors", stats.PairErrors,
		"duration", stats.Duration.String())

	r.mu.Lock()
	r.last = &stats
	r.mu.Unlock()
	return stats
}

// CheckPair runs a single pair through the pipeline outside the
// schedule. Duplicate suppression still applies, so re-checking a pair
// never re-sends what a scheduled cycle already handled.
func (r *Runner) CheckPair(ctx context.Context, ticker, timeframe string) ([]Evaluation, error) {
	signals, err := r.fetcher.Fetch(ctx, ticker, timeframe)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	results := make([]Evaluation, 0, len(signals))
	for _, sig := range signals {
		dec, err := r.dispatcher.Evaluate(ctx, sig)
		if err != nil {
			return results, fmt.Errorf("evaluation failed: %w", err)
		}
		results = append(results, Evaluation{Signal: sig, Decision: dec, At: time.Now()})
	}
	return results, nil
}

func (r *Runner) trackFailures(ctx context.Context, failed bool) {
	r.mu.Lock()
	if failed {
		r.failures++
	} else {
		r.failures = 0
	}
	n := r.failures
	r.mu.Unlock()

	if failed && n == consecutiveFailureAlert && r.alerter != nil {
		r.alerter.Critical(ctx, "Check cycles failing",
			fmt.Sprintf("%d consecutive check cycles have failed", n), nil)
	}
}

func normalizePair(p Pair) Pair {
	return Pair{
		Ticker:    strings.ToUpper(strings.TrimSpace(p.Ticker)),
		Timeframe: strings.TrimSpace(p.Timeframe),
	}
}
