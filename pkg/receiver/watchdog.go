package receiver

import (
	"sync"
	"time"
)

// watchdog tracks link liveness. The silent period is measured from start
// until the first accepted reading, then from the last accepted reading.
type watchdog struct {
	timeout time.Duration // negative disables expiry

	mu       sync.Mutex
	lastFed  time.Time
	accepted bool
	silent   bool
}

func newWatchdog(timeout time.Duration, now time.Time) *watchdog {
	return &watchdog{timeout: timeout, lastFed: now}
}

// reset starts a new silent period at now, forgetting accepted readings.
func (w *watchdog) reset(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastFed = now
	w.accepted = false
	w.silent = false
}

func (w *watchdog) enabled() bool {
	return w.timeout > 0
}

// feed records an accepted reading. It returns true if this ends a silent
// period that check reported.
func (w *watchdog) feed(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	recovered := w.silent
	w.lastFed = now
	w.accepted = true
	w.silent = false
	return recovered
}

// check returns true once per silent period, when the timeout first elapses.
func (w *watchdog) check(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.enabled() || w.silent {
		return false
	}
	if now.Sub(w.lastFed) > w.timeout {
		w.silent = true
		return true
	}
	return false
}

// alive reports whether a reading was accepted within the timeout.
func (w *watchdog) alive(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.accepted {
		return false
	}
	if !w.enabled() {
		return true
	}
	return now.Sub(w.lastFed) <= w.timeout
}

// silentFor returns how long the link has been quiet.
func (w *watchdog) silentFor(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastFed)
}
