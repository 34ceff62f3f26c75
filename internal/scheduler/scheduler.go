package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sigflow/internal/config"
	"sigflow/internal/dispatch"
	"sigflow/internal/logger"
	"sigflow/internal/signal"
)

// State represents the scheduler's lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateIdle     State = "IDLE"
	StateFetching State = "FETCHING"
)

// Strategy names accepted by the configuration.
const (
	StrategyFixed         = "fixed"
	StrategyMarketAligned = "market_aligned"
)

// CycleRunner runs check cycles and exposes the watchlist the
// market-aligned strategy derives its cadence from.
type CycleRunner interface {
	RunCycle(ctx context.Context) dispatch.CycleStats
	Pairs() []dispatch.Pair
}

// Status represents a point-in-time scheduler snapshot.
type Status struct {
	Running   bool      `json:"running"`
	State     State     `json:"state"`
	Strategy  string    `json:"strategy"`
	InSession bool      `json:"in_session"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	Cycles    int64     `json:"cycles"`
}

// Scheduler drives check cycles on a fixed or market-aligned cadence.
// Cycles run inline in the scheduling goroutine, so a wake that arrives
// while a cycle is still running is deferred until the cycle ends and
// cycles never overlap.
type Scheduler struct {
	cfg     config.SchedulerConfig
	runner  CycleRunner
	session *Session
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	state     State
	lastRun   time.Time
	nextRun   time.Time
	cycles    int64

	trigger chan struct{}
	now     func() time.Time
}

// New creates a scheduler. The session is parsed from the configuration
// up front so a bad timezone or clock string fails at startup.
func New(cfg config.SchedulerConfig, runner CycleRunner, log logger.Logger) (*Scheduler, error) {
	session, err := NewSession(cfg.Market)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		session: session,
		log:     log,
		state:   StateStopped,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}, nil
}

// Start launches the scheduling goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.isRunning = true
	s.state = StateIdle

	s.wg.Add(1)
	go s.run()

	s.log.Info("scheduler started", "strategy", s.cfg.Strategy)
	return nil
}

// Stop cancels the scheduler and waits for any in-flight cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.isRunning = false
	s.state = StateStopped
	s.mu.Unlock()

	s.log.Info("scheduler stopped")
	return nil
}

// TriggerNow queues an immediate cycle. If one is already running, the
// triggered cycle starts as soon as it finishes. Duplicate suppression
// in the ledger makes an extra cycle harmless.
func (s *Scheduler) TriggerNow() error {
	s.mu.RLock()
	running := s.isRunning
	s.mu.RUnlock()
	if !running {
		return fmt.Errorf("scheduler is not running")
	}
	select {
	case s.trigger <- struct{}{}:
	default:
		// a manual cycle is already pending
	}
	return nil
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:   s.isRunning,
		State:     s.state,
		Strategy:  s.cfg.Strategy,
		InSession: s.session.Contains(s.now()),
		LastRun:   s.lastRun,
		NextRun:   s.nextRun,
		Cycles:    s.cycles,
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		now := s.now()
		wake := s.nextWake(now)

		s.mu.Lock()
		s.nextRun = wake
		s.mu.Unlock()

		timer := time.NewTimer(wake.Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runCycle("scheduled")
		case <-s.trigger:
			timer.Stop()
			s.runCycle("manual")
		}
	}
}

func (s *Scheduler) runCycle(trigger string) {
	started := s.now()

	s.mu.Lock()
	s.state = StateFetching
	s.mu.Unlock()

	stats := s.runner.RunCycle(s.ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.lastRun = started
	s.cycles++
	s.mu.Unlock()

	s.log.Debug("cycle complete",
		"trigger", trigger, "cycle_id", stats.CycleID,
		"sent", stats.Sent, "skipped", stats.Skipped,
		"duration", stats.Duration.String())
}

// nextWake computes the next nominal wake time after now.
func (s *Scheduler) nextWake(now time.Time) time.Time {
	if !s.session.Contains(now) {
		return now.Add(s.cfg.AfterHoursInterval)
	}
	if s.cfg.Strategy != StrategyMarketAligned {
		return now.Add(s.cfg.Interval)
	}
	next := s.session.NextBoundary(now, s.fastestTimeframe()).Add(s.cfg.CheckDelay)
	if !s.session.Contains(next) {
		// boundary plus delay lands past the close
		return now.Add(s.cfg.AfterHoursInterval)
	}
	return next
}

// fastestTimeframe returns the shortest candle duration on the current
// watchlist, falling back to the fixed interval for an empty list.
func (s *Scheduler) fastestTimeframe() time.Duration {
	var fastest time.Duration
	for _, p := range s.runner.Pairs() {
		if d, ok := signal.TimeframeDuration(p.Timeframe); ok {
			if fastest == 0 || d < fastest {
				fastest = d
			}
		}
	}
	if fastest == 0 {
		fastest = s.cfg.Interval
	}
	return fastest
}
