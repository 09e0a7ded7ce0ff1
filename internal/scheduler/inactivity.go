package scheduler

import (
	"sync"
	"time"
)

// InactivityTimer fires OnTimeout if Reset is not called again within the
// configured duration. Used to detect an agent that has stopped producing
// output, per spec §4.7: the timer resets on every output chunk and, on
// firing, the caller kills the agent and classifies the attempt as a
// timeout failure.
type InactivityTimer struct {
	mu        sync.Mutex
	timer     *time.Timer
	duration  time.Duration
	onTimeout func()
	stopped   bool
}

// NewInactivityTimer starts a timer that invokes onTimeout if Reset is not
// called again within duration. duration <= 0 defaults to
// InactivityTimeout.
func NewInactivityTimer(duration time.Duration, onTimeout func()) *InactivityTimer {
	if duration <= 0 {
		duration = InactivityTimeout
	}
	t := &InactivityTimer{duration: duration, onTimeout: onTimeout}
	t.timer = time.AfterFunc(duration, onTimeout)
	return t
}

// Reset restarts the countdown, as if the agent had just produced output.
func (t *InactivityTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer.Reset(t.duration)
}

// Stop cancels the timer permanently, e.g. once the agent's phase ends.
func (t *InactivityTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}
