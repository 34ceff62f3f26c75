package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sigflow/internal/priority"
	"sigflow/internal/signal"
)

type fakeFetcher struct {
	mu      sync.Mutex
	signals map[string][]signal.Signal
	errs    map[string]error
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		signals: make(map[string][]signal.Signal),
		errs:    make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ticker, timeframe string) ([]signal.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ticker + "/" + timeframe
	f.calls = append(f.calls, key)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.signals[key], nil
}

func newTestRunner(t *testing.T, pairs []Pair) (*Runner, *fakeFetcher, *fakeLedger, *fakeDeliverer) {
	t.Helper()
	led := newFakeLedger()
	del := &fakeDeliverer{ref: "msg-1"}
	holder := priority.NewHolder()
	holder.Swap(activeConfig())
	d := NewDispatcher(led, &fakeLimiter{allow: true}, holder, del, nil)
	f := newFakeFetcher()
	return NewRunner(d, f, pairs, nil), f, led, del
}

func TestRunCycleCounts(t *testing.T) {
	pairs := []Pair{{Ticker: "AAPL", Timeframe: "1h"}, {Ticker: "MSFT", Timeframe: "1h"}}
	r, f, led, _ := newTestRunner(t, pairs)
	now := time.Now()

	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(now), mediumSignal(now)}
	f.errs["MSFT/1h"] = errors.New("detector unreachable")

	stats := r.RunCycle(context.Background())
	if stats.Pairs != 2 {
		t.Errorf("expected 2 pairs, got %d", stats.Pairs)
	}
	if stats.PairErrors != 1 {
		t.Errorf("expected 1 pair error, got %d", stats.PairErrors)
	}
	if stats.Fetched != 2 {
		t.Errorf("expected 2 fetched, got %d", stats.Fetched)
	}
	if stats.Sent != 2 {
		t.Errorf("expected 2 sent, got %d", stats.Sent)
	}
	if stats.Aborted {
		t.Error("a pair fetch error must not abort the cycle")
	}
	if led.count() != 2 {
		t.Errorf("expected 2 ledger entries, got %d", led.count())
	}
}

func TestRunCycleSecondRunIsAllDuplicates(t *testing.T) {
	pairs := []Pair{{Ticker: "AAPL", Timeframe: "1h"}}
	r, f, led, del := newTestRunner(t, pairs)
	now := time.Now()
	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(now), highSignal(now)}

	first := r.RunCycle(context.Background())
	if first.Sent != 2 {
		t.Fatalf("expected 2 sent on first cycle, got %d", first.Sent)
	}

	second := r.RunCycle(context.Background())
	if second.Sent != 0 {
		t.Errorf("expected 0 sent on second cycle, got %d", second.Sent)
	}
	if second.Skipped != 2 {
		t.Errorf("expected 2 skipped on second cycle, got %d", second.Skipped)
	}
	if second.Reasons["duplicate"] != 2 {
		t.Errorf("expected 2 duplicates, got %v", second.Reasons)
	}
	if led.count() != 2 {
		t.Errorf("re-seen identities must not add entries, got %d", led.count())
	}
	if del.callCount() != 2 {
		t.Errorf("expected 2 deliveries total, got %d", del.callCount())
	}
}

func TestRunCycleAbortsOnLedgerFailure(t *testing.T) {
	pairs := []Pair{{Ticker: "AAPL", Timeframe: "1h"}, {Ticker: "MSFT", Timeframe: "1h"}}
	r, f, led, _ := newTestRunner(t, pairs)
	now := time.Now()
	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(now)}
	f.signals["MSFT/1h"] = []signal.Signal{mediumSignal(now)}
	led.existsErr = errors.New("connection refused")

	stats := r.RunCycle(context.Background())
	if !stats.Aborted {
		t.Error("ledger failure must abort the cycle")
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	f.mu.Lock()
	calls := len(f.calls)
	f.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected the second pair to be deferred, got %d fetches", calls)
	}
}

func TestRunCycleRespectsContextCancel(t *testing.T) {
	pairs := []Pair{{Ticker: "AAPL", Timeframe: "1h"}, {Ticker: "MSFT", Timeframe: "1h"}}
	r, _, _, _ := newTestRunner(t, pairs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := r.RunCycle(ctx)
	if !stats.Aborted {
		t.Error("cancelled context must abort the cycle")
	}
	if stats.Fetched != 0 {
		t.Errorf("expected no fetches after cancel, got %d", stats.Fetched)
	}
}

func TestConsecutiveFailureAlert(t *testing.T) {
	pairs := []Pair{{Ticker: "AAPL", Timeframe: "1h"}}
	r, f, _, _ := newTestRunner(t, pairs)
	alerter := &fakeAlerter{}
	r.SetAlerter(alerter)
	f.errs["AAPL/1h"] = errors.New("detector unreachable")

	for i := 0; i < 4; i++ {
		r.RunCycle(context.Background())
	}
	if alerter.criticalCount() != 1 {
		t.Fatalf("expected exactly 1 critical alert after %d failures, got %d",
			consecutiveFailureAlert, alerter.criticalCount())
	}

	// a healthy cycle resets the streak
	delete(f.errs, "AAPL/1h")
	r.RunCycle(context.Background())
	f.errs["AAPL/1h"] = errors.New("detector unreachable")
	for i := 0; i < 3; i++ {
		r.RunCycle(context.Background())
	}
	if alerter.criticalCount() != 2 {
		t.Errorf("expected a second alert after the streak restarts, got %d", alerter.criticalCount())
	}
}

func TestRunCycleAlertsOnFailClosedSkips(t *testing.T) {
	led := newFakeLedger()
	d := NewDispatcher(led, &fakeLimiter{allow: true}, priority.NewHolder(), &fakeDeliverer{ref: "x"}, nil)
	f := newFakeFetcher()
	r := NewRunner(d, f, []Pair{{Ticker: "AAPL", Timeframe: "1h"}}, nil)
	alerter := &fakeAlerter{}
	r.SetAlerter(alerter)

	now := time.Now()
	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(now), highSignal(now)}

	stats := r.RunCycle(context.Background())
	if stats.Reasons["no_active_configuration"] != 2 {
		t.Fatalf("expected 2 fail-closed skips, got %v", stats.Reasons)
	}
	if alerter.criticalCount() != 1 {
		t.Errorf("expected one alert per cycle regardless of skip count, got %d", alerter.criticalCount())
	}
}

func TestCheckPair(t *testing.T) {
	r, f, _, del := newTestRunner(t, nil)
	now := time.Now()
	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(now)}

	evals, err := r.CheckPair(context.Background(), "AAPL", "1h")
	if err != nil {
		t.Fatalf("CheckPair failed: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	if !evals[0].Decision.Sent() {
		t.Errorf("expected SENT, got %s", evals[0].Decision.ReasonString())
	}

	// a re-check sees a duplicate, never a second delivery
	evals, err = r.CheckPair(context.Background(), "AAPL", "1h")
	if err != nil {
		t.Fatalf("CheckPair failed: %v", err)
	}
	if evals[0].Decision.ReasonString() != "duplicate" {
		t.Errorf("expected duplicate, got %q", evals[0].Decision.ReasonString())
	}
	if del.callCount() != 1 {
		t.Errorf("expected 1 delivery, got %d", del.callCount())
	}

	if _, err := r.CheckPair(context.Background(), "TSLA", "1h"); err != nil {
		t.Errorf("empty fetch should succeed, got %v", err)
	}
}

func TestWatchlistMutation(t *testing.T) {
	r, _, _, _ := newTestRunner(t, []Pair{{Ticker: "aapl", Timeframe: " 1h "}, {Ticker: "AAPL", Timeframe: "1h"}})

	pairs := r.Pairs()
	if len(pairs) != 1 {
		t.Fatalf("expected duplicates collapsed, got %v", pairs)
	}
	if pairs[0].Ticker != "AAPL" || pairs[0].Timeframe != "1h" {
		t.Errorf("expected normalized pair, got %v", pairs[0])
	}

	if !r.AddPair(Pair{Ticker: "msft", Timeframe: "1d"}) {
		t.Error("expected AddPair to accept a new pair")
	}
	if r.AddPair(Pair{Ticker: "MSFT", Timeframe: "1d"}) {
		t.Error("expected AddPair to reject a duplicate")
	}
	if r.AddPair(Pair{Ticker: "", Timeframe: "1d"}) {
		t.Error("expected AddPair to reject a blank ticker")
	}
	if !r.RemovePair(Pair{Ticker: "AAPL", Timeframe: "1h"}) {
		t.Error("expected RemovePair to remove an existing pair")
	}
	if r.RemovePair(Pair{Ticker: "AAPL", Timeframe: "1h"}) {
		t.Error("expected RemovePair to report a missing pair")
	}
	if len(r.Pairs()) != 1 {
		t.Errorf("expected 1 pair left, got %v", r.Pairs())
	}
}

func TestLastCycle(t *testing.T) {
	r, f, _, _ := newTestRunner(t, []Pair{{Ticker: "AAPL", Timeframe: "1h"}})
	if _, ok := r.LastCycle(); ok {
		t.Error("expected no stats before the first cycle")
	}
	f.signals["AAPL/1h"] = []signal.Signal{criticalSignal(time.Now())}
	r.RunCycle(context.Background())
	stats, ok := r.LastCycle()
	if !ok {
		t.Fatal("expected stats after a cycle")
	}
	if stats.Sent != 1 {
		t.Errorf("expected 1 sent in last stats, got %d", stats.Sent)
	}
}
