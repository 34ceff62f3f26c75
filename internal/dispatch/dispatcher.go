package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sigflow/internal/delivery"
	"sigflow/internal/logger"
	"sigflow/internal/priority"
	"sigflow/internal/scoring"
	"sigflow/internal/signal"
)

// Ledger is the subset of the ledger repository the dispatcher uses.
// Record's constrained insert is the authoritative deduplication step.
type Ledger interface {
	Record(ctx context.Context, e *signal.LedgerEntry) (bool, error)
	Exists(ctx context.Context, id signal.Identity) (bool, error)
	SetDeliveryRef(ctx context.Context, id int64, ref string) error
}

// Limiter is the sliding-window cap consulted before a send.
type Limiter interface {
	Allow(now time.Time) bool
	Record(now time.Time)
}

// Alerter receives operational alerts raised by the dispatch path.
type Alerter interface {
	Warning(ctx context.Context, title, message string, metadata map[string]interface{})
	Critical(ctx context.Context, title, message string, metadata map[string]interface{})
}

// Evaluation pairs a signal with the decision made for it, handed to
// the decision hook after every evaluation.
type Evaluation struct {
	Signal   signal.Signal   `json:"signal"`
	Decision signal.Decision `json:"decision"`
	At       time.Time       `json:"at"`
}

// Dispatcher turns scored signals into delivery decisions. Every
// evaluation funnels through the ledger's constrained write, so
// concurrent evaluations of the same identity cannot double dispatch.
type Dispatcher struct {
	ledger    Ledger
	limiter   Limiter
	holder    *priority.Holder
	deliverer delivery.Deliverer
	alerter   Alerter
	log       logger.Logger

	mu           sync.RWMutex
	onlyCritical bool
	cachedCfg    *priority.Configuration
	scorer       *scoring.Scorer

	onDecision func(Evaluation)
	now        func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(ledger Ledger, limiter Limiter, holder *priority.Holder, deliverer delivery.Deliverer, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Dispatcher{
		ledger:    ledger,
		limiter:   limiter,
		holder:    holder,
		deliverer: deliverer,
		log:       log,
		now:       time.Now,
	}
}

// SetAlerter attaches the operational alert sink.
func (d *Dispatcher) SetAlerter(a Alerter) {
	d.alerter = a
}

// OnDecision registers a hook invoked synchronously after each
// evaluation. Hooks must be cheap and non-blocking.
func (d *Dispatcher) OnDecision(fn func(Evaluation)) {
	d.onDecision = fn
}

// SetOnlyCritical toggles the mode that suppresses everything below
// CRITICAL.
func (d *Dispatcher) SetOnlyCritical(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onlyCritical = enabled
}

// OnlyCritical reports whether only-critical mode is active.
func (d *Dispatcher) OnlyCritical() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.onlyCritical
}

// Evaluate runs one signal through the decision chain, short-circuiting
// on the first applicable skip reason:
//
//  1. identity already ledgered -> duplicate
//  2. no valid active configuration -> no_active_configuration
//  3. level below the configured minimum -> priority_below_threshold
//  4. only-critical mode and level != CRITICAL -> only_critical_mode
//  5. limiter denies -> rate_limit_exceeded
//  6. otherwise send
//
// Every branch past the first writes exactly one ledger entry; a
// rejected write downgrades the decision to a duplicate no-op.
func (d *Dispatcher) Evaluate(ctx context.Context, sig signal.Signal) (signal.Decision, error) {
	if err := sig.Validate(); err != nil {
		return signal.Decision{}, fmt.Errorf("invalid signal: %w", err)
	}
	now := d.now()

	exists, err := d.ledger.Exists(ctx, sig.Identity())
	if err != nil {
		return signal.Decision{}, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if exists {
		return d.finish(sig, skipped(signal.ReasonDuplicate(), signal.ScoreBreakdown{}), now), nil
	}

	cfg := d.holder.Snapshot()
	if cfg == nil || cfg.Validate() != nil {
		// fail closed until an operator fixes the configuration
		bd := signal.ScoreBreakdown{Level: signal.LevelMinimal}
		return d.record(ctx, sig, bd, signal.ReasonNoActiveConfig(), now)
	}

	bd := d.scorerFor(cfg).Score(sig, now)

	switch {
	case !bd.Level.AtLeast(cfg.MinLevel):
		return d.record(ctx, sig, bd, signal.ReasonBelowThreshold(bd.Level), now)
	case d.OnlyCritical() && bd.Level != signal.LevelCritical:
		return d.record(ctx, sig, bd, signal.ReasonOnlyCritical(), now)
	case !d.limiter.Allow(now):
		return d.record(ctx, sig, bd, signal.ReasonRateLimit(), now)
	}

	return d.send(ctx, sig, bd, now)
}

// record writes a skipped evaluation to the ledger.
func (d *Dispatcher) record(ctx context.Context, sig signal.Signal, bd signal.ScoreBreakdown, reason signal.SkipReason, now time.Time) (signal.Decision, error) {
	entry := newEntry(sig, bd, signal.OutcomeSkipped, reason.String())

	accepted, err := d.ledger.Record(ctx, entry)
	if err != nil {
		return signal.Decision{}, fmt.Errorf("ledger write failed: %w", err)
	}
	if !accepted {
		// lost the race; the identity's first evaluation owns the row
		return d.finish(sig, skipped(signal.ReasonDuplicate(), bd), now), nil
	}
	return d.finish(sig, skipped(reason, bd), now), nil
}

// send claims the identity in the ledger, then hands the signal to the
// delivery collaborator. A delivery failure leaves the row SENT with a
// null reference: re-delivery is never attempted automatically, since
// the identity is already claimed and a retry could double dispatch.
func (d *Dispatcher) send(ctx context.Context, sig signal.Signal, bd signal.ScoreBreakdown, now time.Time) (signal.Decision, error) {
	entry := newEntry(sig, bd, signal.OutcomeSent, "")

	accepted, err := d.ledger.Record(ctx, entry)
	if err != nil {
		return signal.Decision{}, fmt.Errorf("ledger write failed: %w", err)
	}
	if !accepted {
		return d.finish(sig, skipped(signal.ReasonDuplicate(), bd), now), nil
	}

	d.limiter.Record(now)

	ref, derr := d.deliverer.Deliver(ctx, delivery.NewNotification(sig, bd, entry.EvaluatedAt))
	if derr != nil {
		d.log.Warn("delivery failed after ledger commit",
			"identity", sig.Identity().String(), "level", string(bd.Level), "error", derr)
		if d.alerter != nil {
			d.alerter.Warning(ctx, "Delivery failed",
				fmt.Sprintf("signal %s recorded as sent but delivery failed: %v", sig.Identity(), derr),
				map[string]interface{}{"ticker": sig.Ticker, "timeframe": sig.Timeframe})
		}
		return d.finish(sig, signal.Decision{Outcome: signal.OutcomeSent, Breakdown: bd}, now), nil
	}

	if err := d.ledger.SetDeliveryRef(ctx, entry.ID, ref); err != nil {
		d.log.Warn("failed to store delivery reference",
			"identity", sig.Identity().String(), "delivery_ref", ref, "error", err)
	}
	return d.finish(sig, signal.Decision{Outcome: signal.OutcomeSent, Breakdown: bd, DeliveryRef: ref}, now), nil
}

// scorerFor rebuilds the scorer only when the active snapshot changes.
func (d *Dispatcher) scorerFor(cfg *priority.Configuration) *scoring.Scorer {
	d.mu.RLock()
	if d.cachedCfg == cfg && d.scorer != nil {
		s := d.scorer
		d.mu.RUnlock()
		return s
	}
	d.mu.RUnlock()

	s := scoring.NewScorer(cfg.ScoringConfig())
	d.mu.Lock()
	d.cachedCfg = cfg
	d.scorer = s
	d.mu.Unlock()
	return s
}

func (d *Dispatcher) finish(sig signal.Signal, dec signal.Decision, now time.Time) signal.Decision {
	if d.onDecision != nil {
		d.onDecision(Evaluation{Signal: sig, Decision: dec, At: now})
	}
	return dec
}

func skipped(reason signal.SkipReason, bd signal.ScoreBreakdown) signal.Decision {
	return signal.Decision{Outcome: signal.OutcomeSkipped, Reason: &reason, Breakdown: bd}
}

func newEntry(sig signal.Signal, bd signal.ScoreBreakdown, outcome signal.Outcome, skipReason string) *signal.LedgerEntry {
	return &signal.LedgerEntry{
		Ticker:     sig.Ticker,
		Timeframe:  sig.Timeframe,
		SignalType: sig.SignalType,
		DetectedAt: sig.DetectedAt,
		Strength:   sig.Strength,
		System:     sig.System,
		Score:      bd.Total,
		Level:      bd.Level,
		Outcome:    outcome,
		SkipReason: skipReason,
		Breakdown:  bd,
	}
}
