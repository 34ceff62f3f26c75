package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sigflow/internal/config"
	"sigflow/internal/dispatch"
)

type fakeRunner struct {
	mu       sync.Mutex
	cycles   int
	pairs    []dispatch.Pair
	delay    time.Duration
	inFlight atomic.Bool
	overlap  atomic.Bool
}

func (f *fakeRunner) RunCycle(ctx context.Context) dispatch.CycleStats {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.overlap.Store(true)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.cycles++
	n := f.cycles
	f.mu.Unlock()
	f.inFlight.Store(false)
	return dispatch.CycleStats{CycleID: fmt.Sprintf("cycle-%d", n)}
}

func (f *fakeRunner) Pairs() []dispatch.Pair { return f.pairs }

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

// timingConfig wakes every 10ms regardless of weekday so lifecycle
// tests are not sensitive to when they run.
func timingConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Strategy:           StrategyFixed,
		Interval:           10 * time.Millisecond,
		AfterHoursInterval: 10 * time.Millisecond,
		CheckDelay:         2 * time.Minute,
		Market:             config.MarketSessionConfig{Open: "00:01", Close: "23:59", Timezone: "UTC"},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartStop(t *testing.T) {
	cfg := timingConfig()
	cfg.Interval = time.Hour
	cfg.AfterHoursInterval = time.Hour
	s, err := New(cfg, &fakeRunner{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if s.Status().Running {
		t.Error("expected not running before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("expected second Start to fail")
	}
	st := s.Status()
	if !st.Running || st.State == StateStopped {
		t.Errorf("unexpected status after start: %+v", st)
	}
	if st.NextRun.IsZero() {
		t.Error("expected a scheduled next run")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.Status().State != StateStopped {
		t.Errorf("expected STOPPED, got %s", s.Status().State)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestScheduledCyclesRun(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(timingConfig(), runner, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return runner.count() >= 2 })
	if s.Status().Cycles < 2 {
		t.Errorf("expected cycle count to track runs, got %d", s.Status().Cycles)
	}
	if s.Status().LastRun.IsZero() {
		t.Error("expected last run to be recorded")
	}
}

func TestTriggerNow(t *testing.T) {
	cfg := timingConfig()
	cfg.Interval = time.Hour
	cfg.AfterHoursInterval = time.Hour
	runner := &fakeRunner{}
	s, err := New(cfg, runner, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.TriggerNow(); err == nil {
		t.Error("expected TriggerNow to fail while stopped")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.TriggerNow(); err != nil {
		t.Fatalf("TriggerNow failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return runner.count() == 1 })
	s.Stop()
}

func TestCyclesNeverOverlap(t *testing.T) {
	runner := &fakeRunner{delay: 30 * time.Millisecond}
	s, err := New(timingConfig(), runner, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// queue manual triggers while scheduled wakes are firing
	for i := 0; i < 5; i++ {
		s.TriggerNow()
		time.Sleep(15 * time.Millisecond)
	}
	waitFor(t, 2*time.Second, func() bool { return runner.count() >= 3 })
	s.Stop()

	if runner.overlap.Load() {
		t.Error("cycles overlapped")
	}
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	cfg := timingConfig()
	cfg.Interval = time.Hour
	cfg.AfterHoursInterval = time.Hour
	runner := &fakeRunner{delay: 80 * time.Millisecond}
	s, err := New(cfg, runner, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.TriggerNow(); err != nil {
		t.Fatalf("TriggerNow failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.inFlight.Load() })

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if runner.inFlight.Load() {
		t.Error("Stop returned while a cycle was still running")
	}
	if runner.count() != 1 {
		t.Errorf("expected the in-flight cycle to finish, got %d", runner.count())
	}
}

func TestNextWakeFixed(t *testing.T) {
	cfg := config.SchedulerConfig{
		Strategy:           StrategyFixed,
		Interval:           15 * time.Minute,
		AfterHoursInterval: 30 * time.Minute,
		CheckDelay:         2 * time.Minute,
		Market:             config.MarketSessionConfig{Open: "09:30", Close: "16:00", Timezone: "America/New_York"},
	}
	s, err := New(cfg, &fakeRunner{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	inSession := ny(t, s.session, 14, 10, 0)
	if got := s.nextWake(inSession); !got.Equal(inSession.Add(15*time.Minute)) {
		t.Errorf("in-session wake = %s, want +15m", got)
	}
	weekend := ny(t, s.session, 17, 12, 0)
	if got := s.nextWake(weekend); !got.Equal(weekend.Add(30*time.Minute)) {
		t.Errorf("weekend wake = %s, want +30m", got)
	}
}

func TestNextWakeMarketAligned(t *testing.T) {
	cfg := config.SchedulerConfig{
		Strategy:           StrategyMarketAligned,
		Interval:           15 * time.Minute,
		AfterHoursInterval: 30 * time.Minute,
		CheckDelay:         2 * time.Minute,
		Market:             config.MarketSessionConfig{Open: "09:30", Close: "16:00", Timezone: "America/New_York"},
	}
	runner := &fakeRunner{pairs: []dispatch.Pair{
		{Ticker: "AAPL", Timeframe: "1h"},
		{Ticker: "SPY", Timeframe: "15m"},
	}}
	s, err := New(cfg, runner, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// fastest timeframe is 15m: 10:07 -> 10:15 boundary + 2m delay
	at := ny(t, s.session, 14, 10, 7)
	if got := s.nextWake(at); !got.Equal(ny(t, s.session, 14, 10, 17)) {
		t.Errorf("aligned wake = %s, want 10:17", got)
	}

	// boundary + delay past the close falls back to after hours
	lateDay := ny(t, s.session, 14, 15, 50)
	if got := s.nextWake(lateDay); !got.Equal(lateDay.Add(30*time.Minute)) {
		t.Errorf("late-day wake = %s, want +30m", got)
	}

	// outside the session the after-hours cadence applies
	evening := ny(t, s.session, 14, 20, 0)
	if got := s.nextWake(evening); !got.Equal(evening.Add(30*time.Minute)) {
		t.Errorf("evening wake = %s, want +30m", got)
	}

	// an empty watchlist falls back to the fixed interval width
	runner.pairs = nil
	if got := s.nextWake(at); !got.Equal(ny(t, s.session, 14, 10, 17)) {
		t.Errorf("empty-watchlist wake = %s, want 10:17", got)
	}
}
