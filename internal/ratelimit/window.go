package ratelimit

import (
	"sync"
	"time"
)

// Window enforces a sliding-window cap on dispatches. It keeps the
// timestamps of accepted sends in FIFO order and lazily evicts entries
// older than the window on each check. State is process-local: when
// multiple pipeline instances share one ledger, each instance enforces
// its own cap.
type Window struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time
}

// NewWindow creates a limiter allowing max sends per window.
func NewWindow(max int, window time.Duration) *Window {
	return &Window{
		max:    max,
		window: window,
		sent:   make([]time.Time, 0, max),
	}
}

// Allow reports whether a dispatch at now would stay within the cap.
// It does not reserve a slot; callers push via Record once the ledger
// has accepted the send.
func (w *Window) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	return len(w.sent) < w.max
}

// Record pushes an accepted dispatch into the window.
func (w *Window) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	w.sent = append(w.sent, now)
}

// Len returns the number of sends currently inside the window.
func (w *Window) Len(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	return len(w.sent)
}

// Cap returns the configured maximum sends per window.
func (w *Window) Cap() int {
	return w.max
}

// Window returns the configured window length.
func (w *Window) Window() time.Duration {
	return w.window
}

// evict drops entries older than the window. Callers hold the lock.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.sent) && w.sent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.sent = append(w.sent[:0], w.sent[i:]...)
	}
}
