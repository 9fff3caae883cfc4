package notify

import (
	"sync"
	"time"

	"github.com/technosupport/slothunter/internal/clock"
)

// Badge is a small status indicator with text and a background colour.
type Badge interface {
	Set(text, color string)
	Clear()
}

// BadgeState is a point-in-time view of a MemoryBadge.
type BadgeState struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// MemoryBadge keeps the current badge so the API can report it.
type MemoryBadge struct {
	mu    sync.Mutex
	state BadgeState
	sets  int
}

func (b *MemoryBadge) Set(text, color string) {
	b.mu.Lock()
	b.state = BadgeState{Text: text, Color: color}
	b.sets++
	b.mu.Unlock()
}

func (b *MemoryBadge) Clear() {
	b.mu.Lock()
	b.state = BadgeState{}
	b.mu.Unlock()
}

func (b *MemoryBadge) State() BadgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Sets counts Set calls.
func (b *MemoryBadge) Sets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sets
}

var badgeColors = [3]string{"#FF0000", "#FF9800", "#4CAF50"}

const (
	animationSteps    = 6
	animationInterval = 300 * time.Millisecond
)

// Animator flashes a badge through the alert colours and then clears it.
// Starting a new animation cancels the one in progress.
type Animator struct {
	clock clock.Clock
	badge Badge

	mu    sync.Mutex
	gen   uint64
	timer clock.Timer
}

func NewAnimator(c clock.Clock, b Badge) *Animator {
	return &Animator{clock: c, badge: b}
}

func (a *Animator) Start(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	if a.timer != nil {
		a.timer.Stop()
	}
	a.stepLocked(a.gen, 0, text)
}

func (a *Animator) step(gen uint64, i int, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.stepLocked(gen, i, text)
}

func (a *Animator) stepLocked(gen uint64, i int, text string) {
	if i >= animationSteps {
		a.timer = nil
		a.badge.Clear()
		return
	}
	a.badge.Set(text, badgeColors[i%len(badgeColors)])
	a.timer = a.clock.AfterFunc(animationInterval, func() { a.step(gen, i+1, text) })
}
