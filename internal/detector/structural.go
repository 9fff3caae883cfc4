package detector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/technosupport/slothunter/internal/protocol"
)

var (
	buttonMatcher = cascadia.MustCompile(`button, a.btn, a[role=button], [role=button], input[type=submit], input[type=button]`)

	buttonKeywords = []string{"book", "available", "select", "reserve"}
)

// StructuralResult is the outcome of evaluating the rule table.
type StructuralResult struct {
	IsBookingPage bool
	Count         int
	Slots         []protocol.Slot
}

// EvaluateStructure counts available-slot elements and enabled booking
// buttons on a booking page.
func (rs *RuleSet) EvaluateStructure(doc *goquery.Document, logger *slog.Logger) StructuralResult {
	if logger == nil {
		logger = slog.Default()
	}
	var res StructuralResult

	for _, r := range rs.Booking {
		if rs.find(doc.Selection, r, logger).Length() > 0 {
			res.IsBookingPage = true
			break
		}
	}
	if !res.IsBookingPage {
		return res
	}

	matched := make(map[*html.Node]bool)
	for _, r := range rs.Available {
		rs.find(doc.Selection, r, logger).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if matched[n] || rs.insideUnavailable(s) {
				return
			}
			matched[n] = true
			res.Count++
			res.Slots = append(res.Slots, slotFrom(collapse(s.Text())))
		})
	}

	doc.FindMatcher(buttonMatcher).Each(func(_ int, s *goquery.Selection) {
		if matched[s.Get(0)] || disabled(s) || withinMatched(s, matched) {
			return
		}
		label := buttonLabel(s)
		if !containsAny(strings.ToLower(label), buttonKeywords) {
			return
		}
		matched[s.Get(0)] = true
		res.Count++
		res.Slots = append(res.Slots, slotFrom(label))
	})
	return res
}

// find evaluates one rule, isolating a failing rule from the rest.
func (rs *RuleSet) find(root *goquery.Selection, r Rule, logger *slog.Logger) (sel *goquery.Selection) {
	defer func() {
		if p := recover(); p != nil {
			logger.Warn("rule skipped", "selector", r.Selector, "error", fmt.Errorf("%w: %v", ErrSelectorEvaluation, p))
			sel = root.FilterMatcher(noMatch{})
		}
	}()
	return root.FindMatcher(r.matcher)
}

func (rs *RuleSet) insideUnavailable(s *goquery.Selection) bool {
	for _, r := range rs.Unavailable {
		if s.ClosestMatcher(r.matcher).Length() > 0 {
			return true
		}
	}
	return false
}

func disabled(s *goquery.Selection) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if strings.EqualFold(s.AttrOr("aria-disabled", ""), "true") {
		return true
	}
	return s.HasClass("disabled")
}

func withinMatched(s *goquery.Selection, matched map[*html.Node]bool) bool {
	for _, n := range s.Parents().Nodes {
		if matched[n] {
			return true
		}
	}
	return false
}

func buttonLabel(s *goquery.Selection) string {
	if goquery.NodeName(s) == "input" {
		return collapse(s.AttrOr("value", ""))
	}
	label := collapse(s.Text())
	if label == "" {
		label = collapse(s.AttrOr("aria-label", ""))
	}
	return label
}

func slotFrom(text string) protocol.Slot {
	s := protocol.Slot{Text: truncate(text, 120)}
	if d := dateToken.FindString(text); d != "" && validDate(d) {
		s.Date = d
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(s string, subs []string) bool {
	for _, x := range subs {
		if strings.Contains(s, x) {
			return true
		}
	}
	return false
}

// noMatch matches nothing.
type noMatch struct{}

func (noMatch) Match(*html.Node) bool { return false }

func (noMatch) MatchAll(*html.Node) []*html.Node { return nil }

func (noMatch) Filter([]*html.Node) []*html.Node { return nil }
