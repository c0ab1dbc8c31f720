package provider

import (
	"testing"
	"time"

	"stock-opportunity-engine/internal/entity"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEventType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"preferential allotment", "Board approves preferential allotment of equity shares", entity.EventPreferentialAllotment},
		{"warrants map to preferential", "Issue of convertible warrants to promoters", entity.EventPreferentialAllotment},
		{"capacity expansion", "Company announces capacity expansion at Gujarat unit", entity.EventCapacityExpansion},
		{"new plant", "New plant at Pune to commence operations", entity.EventNewPlant},
		{"acquisition", "Signs agreement to acquire 51% stake in ABC Ltd", entity.EventAcquisition},
		{"joint venture", "Enters joint venture with overseas partner", entity.EventPartnership},
		{"mou", "MoU signed with state government", entity.EventPartnership},
		{"subsidiary", "Incorporated a wholly owned subsidiary in Singapore", entity.EventSubsidiaryLaunch},
		{"large order", "Receives work order worth Rs 300 crore", entity.EventLargeOrder},
		{"case insensitive", "ACQUISITION of minority stake completed", entity.EventAcquisition},
		{"no match", "Outcome of board meeting held today", ""},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyEventType(tc.text))
		})
	}
}

func TestClassifyEventTypeFirstRuleWins(t *testing.T) {
	// Text matching both the allotment and order rules classifies by rule
	// order, not match position.
	got := classifyEventType("order placed alongside preferential allotment")
	assert.Equal(t, entity.EventPreferentialAllotment, got)
}

func TestExtractValueCr(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"crore spelled out", "order worth Rs 300 crore from NTPC", 300},
		{"cr abbreviation", "contract of 42.5 cr received", 42.5},
		{"comma separated", "bagged order of Rs 1,250 crore", 1250},
		{"lakh converts to crore", "penalty of 50 lakh imposed", 0.5},
		{"crore preferred over lakh", "order of 10 crore and fees of 20 lakh", 10},
		{"no value", "board meeting scheduled", 0},
		{"bare number ignored", "order for 500 units", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, extractValueCr(tc.text), 0.001)
		})
	}
}

func TestPickAnnouncementText(t *testing.T) {
	assert.Equal(t, "Primary desc",
		pickAnnouncementText(map[string]interface{}{"desc": "Primary desc", "subject": "Fallback"}))
	assert.Equal(t, "Fallback subject",
		pickAnnouncementText(map[string]interface{}{"desc": "  ", "subject": "Fallback subject"}))
	assert.Equal(t, "squeezed text here",
		pickAnnouncementText(map[string]interface{}{"headline": "squeezed   text\n here"}))
	assert.Equal(t, "", pickAnnouncementText(map[string]interface{}{"other": "x"}))
}

func TestPickAnnouncementDate(t *testing.T) {
	tests := []struct {
		name string
		item map[string]interface{}
		want time.Time
	}{
		{
			"iso date",
			map[string]interface{}{"an_dt": "2026-07-15"},
			time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"indian day first",
			map[string]interface{}{"an_dt": "15-07-2026"},
			time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"month name with time",
			map[string]interface{}{"date": "15-Jul-2026 09:30:00"},
			time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			"unix timestamp",
			map[string]interface{}{"dt": float64(1767225600)},
			time.Unix(1767225600, 0).UTC(),
		},
		{
			"first populated field wins",
			map[string]interface{}{"an_dt": "2026-07-15", "date": "2025-01-01"},
			time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pickAnnouncementDate(tc.item))
		})
	}
}

func TestPickAnnouncementDateFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Minute)
	got := pickAnnouncementDate(map[string]interface{}{"an_dt": "not a date"})
	assert.True(t, got.After(before))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Order worth 300 crore", stripHTML("<a href=\"#\">Order worth 300 crore</a>"))
	assert.Equal(t, "", stripHTML(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
