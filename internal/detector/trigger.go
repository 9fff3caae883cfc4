package detector

import (
	"sync"
	"time"

	"github.com/technosupport/slothunter/internal/clock"
)

// Trigger coalesces bursts of signals: fn runs once, window after the
// last Signal.
type Trigger struct {
	clock  clock.Clock
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func NewTrigger(c clock.Clock, window time.Duration, fn func()) *Trigger {
	return &Trigger{clock: c, window: window, fn: fn}
}

func (t *Trigger) Signal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.window, t.fn)
}

// Stop cancels a pending run and ignores later signals.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
