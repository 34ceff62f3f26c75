package monitor

import (
	"context"
	"time"

	"sigflow/internal/delivery"
	"sigflow/internal/dispatch"
	"sigflow/internal/signal"
)

// FetchRecorder receives detector fetch observations.
type FetchRecorder interface {
	RecordFetch(ticker, timeframe string, signals int, duration time.Duration)
	RecordFetchError(ticker, timeframe string)
}

// LedgerRecorder receives ledger conflict observations.
type LedgerRecorder interface {
	RecordLedgerConflict()
}

// DeliveryRecorder receives delivery attempt observations.
type DeliveryRecorder interface {
	RecordDelivery(channel string, duration time.Duration, success bool)
}

// CycleRecorder receives check cycle observations.
type CycleRecorder interface {
	RecordCycle(status string, duration time.Duration)
}

// InstrumentedFetcher wraps a fetcher with fetch metrics.
type InstrumentedFetcher struct {
	inner dispatch.Fetcher
	rec   FetchRecorder
}

// InstrumentFetcher wraps the fetcher so every fetch is timed and
// failures are counted per pair.
func InstrumentFetcher(inner dispatch.Fetcher, rec FetchRecorder) *InstrumentedFetcher {
	return &InstrumentedFetcher{inner: inner, rec: rec}
}

// Fetch delegates to the wrapped fetcher and records the outcome.
func (f *InstrumentedFetcher) Fetch(ctx context.Context, ticker, timeframe string) ([]signal.Signal, error) {
	start := time.Now()
	signals, err := f.inner.Fetch(ctx, ticker, timeframe)
	if err != nil {
		f.rec.RecordFetchError(ticker, timeframe)
		return nil, err
	}
	f.rec.RecordFetch(ticker, timeframe, len(signals), time.Since(start))
	return signals, nil
}

// InstrumentedLedger wraps a ledger with conflict metrics.
type InstrumentedLedger struct {
	inner dispatch.Ledger
	rec   LedgerRecorder
}

// InstrumentLedger wraps the ledger so inserts rejected by the identity
// constraint are counted.
func InstrumentLedger(inner dispatch.Ledger, rec LedgerRecorder) *InstrumentedLedger {
	return &InstrumentedLedger{inner: inner, rec: rec}
}

// Record delegates to the wrapped ledger, counting rejected claims.
func (l *InstrumentedLedger) Record(ctx context.Context, e *signal.LedgerEntry) (bool, error) {
	created, err := l.inner.Record(ctx, e)
	if err == nil && !created {
		l.rec.RecordLedgerConflict()
	}
	return created, err
}

// Exists delegates to the wrapped ledger.
func (l *InstrumentedLedger) Exists(ctx context.Context, id signal.Identity) (bool, error) {
	return l.inner.Exists(ctx, id)
}

// SetDeliveryRef delegates to the wrapped ledger.
func (l *InstrumentedLedger) SetDeliveryRef(ctx context.Context, id int64, ref string) error {
	return l.inner.SetDeliveryRef(ctx, id, ref)
}

// InstrumentedDeliverer wraps a deliverer with delivery metrics.
type InstrumentedDeliverer struct {
	inner delivery.Deliverer
	rec   DeliveryRecorder
}

// InstrumentDeliverer wraps the deliverer so every attempt is timed and
// counted by channel and success.
func InstrumentDeliverer(inner delivery.Deliverer, rec DeliveryRecorder) *InstrumentedDeliverer {
	return &InstrumentedDeliverer{inner: inner, rec: rec}
}

// Deliver delegates to the wrapped deliverer and records the attempt.
func (d *InstrumentedDeliverer) Deliver(ctx context.Context, n delivery.Notification) (string, error) {
	start := time.Now()
	ref, err := d.inner.Deliver(ctx, n)
	d.rec.RecordDelivery(d.inner.Name(), time.Since(start), err == nil)
	return ref, err
}

// Name returns the wrapped deliverer's channel name.
func (d *InstrumentedDeliverer) Name() string {
	return d.inner.Name()
}

// cycler is the runner surface the scheduler drives.
type cycler interface {
	RunCycle(ctx context.Context) dispatch.CycleStats
	Pairs() []dispatch.Pair
}

// InstrumentedRunner wraps a runner with per-cycle metrics.
type InstrumentedRunner struct {
	inner cycler
	rec   CycleRecorder
}

// InstrumentRunner wraps the runner so every cycle is timed and counted
// by status.
func InstrumentRunner(inner cycler, rec CycleRecorder) *InstrumentedRunner {
	return &InstrumentedRunner{inner: inner, rec: rec}
}

// RunCycle delegates to the wrapped runner and records the cycle.
func (r *InstrumentedRunner) RunCycle(ctx context.Context) dispatch.CycleStats {
	stats := r.inner.RunCycle(ctx)
	r.rec.RecordCycle(cycleStatus(stats), stats.Duration)
	return stats
}

// Pairs returns the wrapped runner's watchlist.
func (r *InstrumentedRunner) Pairs() []dispatch.Pair {
	return r.inner.Pairs()
}

func cycleStatus(stats dispatch.CycleStats) string {
	switch {
	case stats.Aborted:
		return "aborted"
	case stats.Errors > 0 || stats.PairErrors > 0:
		return "errors"
	default:
		return "ok"
	}
}
