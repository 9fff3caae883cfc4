package detector

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/technosupport/slothunter/internal/protocol"
)

const proximityWindow = 100

var (
	dateToken = regexp.MustCompile(`\b(\d{2})[-/](\d{2})[-/](\d{4})\b`)

	// Ties at the same offset go to the earlier pattern.
	phrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bnext\s+available(?:\s+(?:appointment|slot|date))?s?\s*(?:on|from|is|:)?\s*:?\s*(\d{2}[-/]\d{2}[-/]\d{4})\b`),
		regexp.MustCompile(`(?i)\bearliest(?:\s+available)?(?:\s+(?:appointment|slot|date))?s?\s*(?:on|from|is|:)?\s*:?\s*(\d{2}[-/]\d{2}[-/]\d{4})\b`),
		regexp.MustCompile(`(?i)\b(?:appointments?|slots?)\s+available\s*(?:on|from|for|:)?\s*:?\s*(\d{2}[-/]\d{2}[-/]\d{4})\b`),
		regexp.MustCompile(`(?i)\bavailable\s+(?:on|from)\s*:?\s*(\d{2}[-/]\d{2}[-/]\d{4})\b`),
	}

	proximityKeyword = regexp.MustCompile(`(?i)\b(?:available|availability|slots?|appointments?|earliest|book(?:ing)?)\b`)
	negation         = regexp.MustCompile(`(?i)\b(?:no\s|not\s+available|unavailable|fully\s+booked)`)
	leadingNegation  = regexp.MustCompile(`(?i)\b(?:no|not)\s+(?:(?:appointments?|slots?|dates?)\s+)?$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// validDate reports whether a DD-MM-YYYY token names a plausible day.
func validDate(token string) bool {
	m := dateToken.FindStringSubmatch(token)
	if m == nil {
		return false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	return day >= 1 && day <= 31 && month >= 1 && month <= 12
}

// dateKey normalizes separators so 15/03/2025 and 15-03-2025 dedupe.
func dateKey(token string) string {
	return strings.ReplaceAll(token, "/", "-")
}

func parseDate(token string) (time.Time, bool) {
	t, err := time.Parse("02-01-2006", dateKey(token))
	return t, err == nil
}

// clauseStart returns the index after the last sentence break before i,
// bounded by the proximity window.
func clauseStart(text string, i int) int {
	lo := i - proximityWindow
	if lo < 0 {
		lo = 0
	}
	if j := strings.LastIndexAny(text[lo:i], ".!?\n"); j >= 0 {
		return lo + j + 1
	}
	return lo
}

type phraseMatch struct {
	start, end   int
	dateS, dateE int
}

// FindPatternSlots scans page text for dated availability statements.
// Results are deduplicated by date: phrase matches first in text order,
// then dates found near an availability keyword.
func FindPatternSlots(text string) []protocol.Slot {
	var (
		slots []protocol.Slot
		seen  = make(map[string]bool)
	)
	add := func(snippet, date string) {
		k := dateKey(date)
		if seen[k] || !validDate(date) {
			return
		}
		seen[k] = true
		slots = append(slots, protocol.Slot{Text: snippet, Date: date})
	}

	var phrases []phraseMatch
	for _, p := range phrasePatterns {
		for _, loc := range p.FindAllStringSubmatchIndex(text, -1) {
			// "No appointments available on ..." negates only when it leads the phrase.
			if leadingNegation.MatchString(text[clauseStart(text, loc[0]):loc[0]]) {
				continue
			}
			phrases = append(phrases, phraseMatch{loc[0], loc[1], loc[2], loc[3]})
		}
	}
	sort.SliceStable(phrases, func(i, j int) bool { return phrases[i].start < phrases[j].start })
	for _, m := range phrases {
		add(strings.TrimSpace(text[m.start:m.end]), text[m.dateS:m.dateE])
	}

	for _, loc := range dateToken.FindAllStringIndex(text, -1) {
		lo := loc[0] - proximityWindow
		if lo < 0 {
			lo = 0
		}
		window := text[lo:loc[0]]
		if !proximityKeyword.MatchString(window) || negation.MatchString(window) {
			continue
		}
		add(strings.TrimSpace(text[clauseStart(text, loc[0]):loc[1]]), text[loc[0]:loc[1]])
	}
	return slots
}

// EarliestDate returns the earliest parseable date among slots, in the
// form it appeared on the page.
func EarliestDate(slots []protocol.Slot) string {
	type dated struct {
		raw string
		t   time.Time
	}
	var ds []dated
	for _, s := range slots {
		if t, ok := parseDate(s.Date); ok {
			ds = append(ds, dated{s.Date, t})
		}
	}
	if len(ds) == 0 {
		return ""
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].t.Before(ds[j].t) })
	return ds[0].raw
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
