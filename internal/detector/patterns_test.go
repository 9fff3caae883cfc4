package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPatternSlots(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		dates []string
	}{
		{"next available", "Next available appointment on 15-03-2025", []string{"15-03-2025"}},
		{"earliest", "Earliest available slot: 02/05/2025", []string{"02/05/2025"}},
		{"slots available from", "Slots available from 21-04-2025", []string{"21-04-2025"}},
		{"negated phrase", "No appointments available on 15-03-2025", nil},
		{"not available", "Not available on 15-03-2025", nil},
		{"negation window", "Fully booked until 20/04/2025. Slots available from 21/04/2025", []string{"21/04/2025"}},
		{"dedupe across separators", "Earliest available: 15-03-2025. Next available appointment on 15/03/2025", []string{"15-03-2025"}},
		{"proximity", "Appointments available on 01-04-2025 and 03-04-2025", []string{"01-04-2025", "03-04-2025"}},
		{"no keyword", "Office closed on 25-12-2025", nil},
		{"invalid date", "appointments available 45-13-2025", nil},
		{"fully booked", "Fully booked: slot 10-10-2025", nil},
		{"unavailable", "Slot unavailable 10-10-2025", nil},
		{"unrelated not", "Please do not refresh this page; next available appointment on 15-03-2025", []string{"15-03-2025"}},
		{"unrelated no", "No fee required, next available appointment on 15-03-2025", []string{"15-03-2025"}},
		{"not without available", "Appointment slots for your visa, not bookable by agents, available: 15-03-2025", []string{"15-03-2025"}},
		{"text order", "Earliest slot: 18-03-2025. Next available appointment on 20-03-2025", []string{"18-03-2025", "20-03-2025"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := FindPatternSlots(tt.text)
			var dates []string
			for _, s := range slots {
				dates = append(dates, s.Date)
				assert.NotEmpty(t, s.Text)
			}
			assert.Equal(t, tt.dates, dates)
		})
	}
}

func TestFindPatternSlots_PhraseEvidence(t *testing.T) {
	slots := FindPatternSlots("Welcome. Next available appointment on 15-03-2025 at Chennai")
	require.Len(t, slots, 1)
	assert.Equal(t, "Next available appointment on 15-03-2025", slots[0].Text)
}

func TestEarliestDate(t *testing.T) {
	slots := FindPatternSlots("Appointments available on 03-04-2025 and 01/04/2025")
	assert.Equal(t, "01/04/2025", EarliestDate(slots))
	assert.Equal(t, "", EarliestDate(nil))
}

func TestIndicatorText(t *testing.T) {
	assert.Equal(t, "🎯 1 SLOT FOUND! - 15-03-2025", IndicatorText(1, "15-03-2025"))
	assert.Equal(t, "🎯 4 SLOTS FOUND!", IndicatorText(4, ""))
	assert.Equal(t, "🎯 2 SLOTS FOUND! - 01-04-2025", IndicatorText(2, "01-04-2025"))
}

func TestSiteMatches(t *testing.T) {
	kw := []string{"vfsglobal", "visa", "appointment"}
	assert.True(t, SiteMatches("https://visa.vfsglobal.com/ind/en/deu/book-an-appointment", kw))
	assert.True(t, SiteMatches("https://example.org/Appointment", kw))
	assert.False(t, SiteMatches("https://example.org/news", kw))
	assert.False(t, SiteMatches("https://example.org", nil))
}
