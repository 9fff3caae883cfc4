package detector

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/technosupport/slothunter/internal/config"
)

// ErrSelectorEvaluation marks a rule that could not be compiled or run.
var ErrSelectorEvaluation = errors.New("selector evaluation failed")

type RuleKind string

const (
	RuleBooking     RuleKind = "booking"
	RuleAvailable   RuleKind = "available"
	RuleUnavailable RuleKind = "unavailable"
)

// Rule is a compiled selector of a given kind.
type Rule struct {
	Kind     RuleKind
	Selector string
	matcher  goquery.Matcher
}

// RuleSet groups the compiled rules by kind.
type RuleSet struct {
	Booking     []Rule
	Available   []Rule
	Unavailable []Rule
}

// DefaultRules is the built-in table for appointment booking pages.
var DefaultRules = []config.RuleConfig{
	{Kind: "booking", Selector: ".appointment-calendar"},
	{Kind: "booking", Selector: ".booking-calendar"},
	{Kind: "booking", Selector: ".booking-form"},
	{Kind: "booking", Selector: "form[action*=appointment]"},
	{Kind: "booking", Selector: "form[action*=booking]"},
	{Kind: "booking", Selector: "[id*=appointment]"},
	{Kind: "booking", Selector: "[class*=calendar]"},
	{Kind: "booking", Selector: "[class*=time-slot]"},

	{Kind: "available", Selector: ".slot-available"},
	{Kind: "available", Selector: ".appointment-slot"},
	{Kind: "available", Selector: ".available-slot"},
	{Kind: "available", Selector: "td.available"},
	{Kind: "available", Selector: "[data-available=true]"},

	{Kind: "unavailable", Selector: ".slot-unavailable"},
	{Kind: "unavailable", Selector: ".unavailable"},
	{Kind: "unavailable", Selector: ".no-slots"},
	{Kind: "unavailable", Selector: ".fully-booked"},
	{Kind: "unavailable", Selector: "[data-available=false]"},
}

// CompileRules compiles cfgs. Rules that fail to compile, or that carry an
// unknown kind, are logged and dropped so evaluation never fails on them.
func CompileRules(cfgs []config.RuleConfig, logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfgs) == 0 {
		cfgs = DefaultRules
	}

	rs := &RuleSet{}
	for _, c := range cfgs {
		sel, err := cascadia.Compile(c.Selector)
		if err != nil {
			logger.Warn("dropping rule", "kind", c.Kind, "selector", c.Selector,
				"error", fmt.Errorf("%w: %v", ErrSelectorEvaluation, err))
			continue
		}
		r := Rule{Kind: RuleKind(c.Kind), Selector: c.Selector, matcher: sel}
		switch r.Kind {
		case RuleBooking:
			rs.Booking = append(rs.Booking, r)
		case RuleAvailable:
			rs.Available = append(rs.Available, r)
		case RuleUnavailable:
			rs.Unavailable = append(rs.Unavailable, r)
		default:
			logger.Warn("dropping rule with unknown kind", "kind", c.Kind, "selector", c.Selector)
		}
	}
	return rs
}

// Len is the number of usable rules.
func (rs *RuleSet) Len() int {
	return len(rs.Booking) + len(rs.Available) + len(rs.Unavailable)
}
