// Package detector inspects a watched booking page for open appointment
// slots and reports positive changes to the coordinator.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/technosupport/slothunter/internal/clock"
	"github.com/technosupport/slothunter/internal/metrics"
	"github.com/technosupport/slothunter/internal/protocol"
)

const maxEvidence = 5

type Mode string

const (
	ModePattern    Mode = "pattern"
	ModeStructural Mode = "structural"
	ModeBoth       Mode = "both"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModePattern, ModeStructural, ModeBoth:
		return m, nil
	case "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Check outcomes.
const (
	StatusChecked  = "checked"
	StatusBusy     = "busy"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Gate reports whether detection is licensed.
type Gate interface {
	Allowed(ctx context.Context) bool
}

// SoundPolicy decides whether an alert may be audible.
type SoundPolicy interface {
	SoundEnabled(ctx context.Context) bool
}

// Evaluation is the combined result of both strategies on one document.
type Evaluation struct {
	Title         string
	IsBookingPage bool
	Count         int
	Slots         []protocol.Slot
}

// Evaluate runs the strategies selected by mode against doc.
func Evaluate(doc *goquery.Document, mode Mode, rules *RuleSet, logger *slog.Logger) Evaluation {
	ev := Evaluation{Title: collapse(doc.Find("title").First().Text())}

	var pattern []protocol.Slot
	if mode != ModeStructural {
		pattern = FindPatternSlots(PageText(doc))
	}

	// Booking-page status is reported in every mode.
	st := rules.EvaluateStructure(doc, logger)
	ev.IsBookingPage = st.IsBookingPage

	switch mode {
	case ModePattern:
		ev.Count = len(pattern)
		ev.Slots = pattern
	case ModeStructural:
		ev.Count = st.Count
		ev.Slots = st.Slots
	default:
		ev.Count = max(len(pattern), st.Count)
		ev.Slots = append(append([]protocol.Slot{}, pattern...), st.Slots...)
	}
	if len(ev.Slots) > maxEvidence {
		ev.Slots = ev.Slots[:maxEvidence]
	}
	return ev
}

type Options struct {
	ID               string
	Page             Page
	Mode             Mode
	Rules            *RuleSet
	Keywords         []string
	InitialDelay     time.Duration
	DebounceWindow   time.Duration
	FallbackInterval time.Duration

	Bus       protocol.Bus
	Gate      Gate
	Clock     clock.Clock
	Indicator Indicator
	Beeper    Beeper      // nil is silent
	Sound     SoundPolicy // nil always beeps
	Logger    *slog.Logger
}

// CheckOutcome is the result of one CheckForSlots call.
type CheckOutcome struct {
	Status string
	Count  int
}

type Detector struct {
	opts   Options
	logger *slog.Logger

	inFlight atomic.Bool

	mu           sync.Mutex
	lastReported int
	info         protocol.PageInfo
}

func New(opts Options) *Detector {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		opts.Rules = CompileRules(nil, opts.Logger)
	}
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	if opts.Indicator == nil {
		opts.Indicator = &MemoryIndicator{}
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 2 * time.Second
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 500 * time.Millisecond
	}
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = 30 * time.Second
	}
	return &Detector{
		opts:   opts,
		logger: opts.Logger.With("page", opts.ID),
		info:   protocol.PageInfo{ID: opts.ID, URL: opts.Page.URL()},
	}
}

func (d *Detector) ID() string { return d.opts.ID }

func (d *Detector) URL() string { return d.opts.Page.URL() }

// active is the inertness check: target site and licensed.
func (d *Detector) active(ctx context.Context) bool {
	if !SiteMatches(d.opts.Page.URL(), d.opts.Keywords) {
		return false
	}
	return d.opts.Gate == nil || d.opts.Gate.Allowed(ctx)
}

// CheckForSlots evaluates the page once. A call made while another is in
// flight returns StatusBusy without doing anything.
func (d *Detector) CheckForSlots(ctx context.Context) CheckOutcome {
	if !d.inFlight.CompareAndSwap(false, true) {
		metrics.RecordDetectorCheck(d.opts.ID, StatusBusy, 0)
		return CheckOutcome{Status: StatusBusy}
	}
	defer d.inFlight.Store(false)

	start := time.Now()
	out := d.check(ctx)
	metrics.RecordDetectorCheck(d.opts.ID, out.Status, time.Since(start).Seconds())
	return out
}

func (d *Detector) check(ctx context.Context) CheckOutcome {
	if !d.active(ctx) {
		return CheckOutcome{Status: StatusInactive}
	}

	doc, err := d.opts.Page.Document(ctx)
	if err != nil {
		d.logger.Warn("page unavailable", "error", err)
		return CheckOutcome{Status: StatusError}
	}
	ev := Evaluate(doc, d.opts.Mode, d.opts.Rules, d.logger)

	d.mu.Lock()
	d.info.Title = ev.Title
	d.info.IsBookingPage = ev.IsBookingPage
	d.info.LastSlotCount = ev.Count
	last := d.lastReported
	if ev.Count > 0 {
		d.lastReported = ev.Count
	}
	d.mu.Unlock()

	switch {
	case ev.Count == 0:
		d.opts.Indicator.Clear()
	case ev.Count == last:
		// Already reported.
	default:
		d.alert(ctx, ev)
	}
	return CheckOutcome{Status: StatusChecked, Count: ev.Count}
}

func (d *Detector) alert(ctx context.Context, ev Evaluation) {
	if d.opts.Beeper != nil && (d.opts.Sound == nil || d.opts.Sound.SoundEnabled(ctx)) {
		d.opts.Beeper.Beep()
	}
	d.opts.Indicator.Show(IndicatorText(ev.Count, EarliestDate(ev.Slots)))
	d.logger.Info("slots found", "count", ev.Count)

	if d.opts.Bus == nil {
		return
	}
	msg, err := protocol.NewMessage(protocol.SlotsFound, protocol.DetectionResult{
		Count:     ev.Count,
		URL:       d.opts.Page.URL(),
		Slots:     ev.Slots,
		Timestamp: d.opts.Clock.Now().UTC(),
	})
	if err != nil {
		d.logger.Error("encode slots message", "error", err)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := d.opts.Bus.Request(rctx, protocol.SubjectCoordinator, msg); err != nil {
		d.logger.Warn("coordinator did not acknowledge slots", "error", err)
	}
}

func (d *Detector) PageInfo() protocol.PageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Handle answers detector commands arriving over the bus.
func (d *Detector) Handle(ctx context.Context, msg protocol.Message) (json.RawMessage, error) {
	switch msg.Type {
	case protocol.CheckSlots:
		out := d.CheckForSlots(ctx)
		return json.Marshal(protocol.CheckSlotsResponse{Status: out.Status, SlotCount: out.Count})
	case protocol.GetPageInfo:
		return json.Marshal(d.PageInfo())
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// Attach subscribes the detector to the broadcast subject and its own.
func (d *Detector) Attach(bus protocol.Bus) (func(), error) {
	unsubAll, err := bus.Subscribe(protocol.SubjectDetectors, d.Handle)
	if err != nil {
		return nil, err
	}
	unsubOne, err := bus.Subscribe(protocol.DetectorSubject(d.opts.ID), d.Handle)
	if err != nil {
		unsubAll()
		return nil, err
	}
	return func() { unsubAll(); unsubOne() }, nil
}

// Run drives checks until ctx is cancelled: once after the initial delay,
// after each burst of mutations settles, on visibility, and on a fallback
// timer.
func (d *Detector) Run(ctx context.Context) {
	if !SiteMatches(d.opts.Page.URL(), d.opts.Keywords) {
		d.logger.Info("not a target site, detector idle", "url", d.opts.Page.URL())
		<-ctx.Done()
		return
	}

	if w, ok := d.opts.Page.(watcher); ok {
		go w.Watch(ctx)
	}

	check := func() {
		if ctx.Err() == nil {
			d.CheckForSlots(ctx)
		}
	}

	initial := d.opts.Clock.AfterFunc(d.opts.InitialDelay, check)
	trigger := NewTrigger(d.opts.Clock, d.opts.DebounceWindow, check)

	var (
		fbMu     sync.Mutex
		fallback clock.Timer
		tick     func()
	)
	tick = func() {
		check()
		fbMu.Lock()
		defer fbMu.Unlock()
		if ctx.Err() == nil {
			fallback = d.opts.Clock.AfterFunc(d.opts.FallbackInterval, tick)
		}
	}
	fbMu.Lock()
	fallback = d.opts.Clock.AfterFunc(d.opts.FallbackInterval, tick)
	fbMu.Unlock()

	defer func() {
		initial.Stop()
		trigger.Stop()
		fbMu.Lock()
		fallback.Stop()
		fbMu.Unlock()
	}()

	events := d.opts.Page.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case Mutation:
				trigger.Signal()
			case Visible:
				go check()
			}
		}
	}
}
