package monitor

import (
	"sync"
	"time"

	"github.com/technosupport/slothunter/internal/clock"
)

// Alarm fires fn every period until disarmed. Re-arming replaces the
// previous schedule.
type Alarm struct {
	clock clock.Clock

	mu     sync.Mutex
	gen    uint64
	timer  clock.Timer
	period time.Duration
}

func NewAlarm(c clock.Clock) *Alarm {
	return &Alarm{clock: c}
}

func (a *Alarm) Arm(period time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
	}
	a.period = period
	a.scheduleLocked(a.gen, fn)
}

func (a *Alarm) scheduleLocked(gen uint64, fn func()) {
	a.timer = a.clock.AfterFunc(a.period, func() {
		a.mu.Lock()
		if gen != a.gen {
			a.mu.Unlock()
			return
		}
		a.scheduleLocked(gen, fn)
		a.mu.Unlock()
		fn()
	})
}

func (a *Alarm) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.period = 0
}

// Period is the armed period, zero when disarmed.
func (a *Alarm) Period() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.period
}
