package tools

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-20 14:00", at(20, 14, 0)},
		{"2026-03-20T14:30:00Z", at(20, 14, 30)},
		{"2026-03-20", at(20, 9, 0)},
		{"2026-03-20 2pm", at(20, 14, 0)},
		{"2026-03-20 2:15 PM", at(20, 14, 15)},
		{"today", at(18, 9, 0)},
		{"Tomorrow at 2pm", at(19, 14, 0)},
		{"tomorrow at 14:45", at(19, 14, 45)},
		{"next week", at(25, 9, 0)},
		{"friday at 3pm", at(20, 15, 0)},
		{"next Monday at 9am", at(23, 9, 0)},
		{"wednesday", at(25, 9, 0)},
		{"today at 12am", at(18, 0, 0)},
		{"today at 12pm", at(18, 12, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDateTime(tt.in, fixedNow)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"someday", "tomorrow at 25:00", "today at 13pm", ""} {
		_, err := ParseDateTime(bad, fixedNow)
		assert.Error(t, err, bad)
	}
}

func TestCreateEvent(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)

	out := mustCall(t, reg, "create_event", map[string]interface{}{
		"title": "Dentist", "start_time": "2026-03-20 14:00", "duration_minutes": 45,
		"location": "Main St", "attendees": "ana@example.com, bo@example.com",
	})
	assert.True(t, strings.HasPrefix(out, "✅ Event created successfully!\n"+
		"📅 Dentist\n"+
		"🕐 2026-03-20 02:00 PM - 02:45 PM\n"+
		"📍 Main St\n"+
		"👥 ana@example.com, bo@example.com\n"+
		"\n🔗 Event ID: "), out)

	out = mustCall(t, reg, "create_event", map[string]interface{}{"title": "Party", "start_time": "someday"})
	assert.Equal(t, "Error: Could not understand the date/time 'someday'. Use a format like '2024-03-20 14:00' or 'tomorrow at 2pm'.", out)
}

func TestViewEvents(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)

	assert.Equal(t, "No events found in the next 7 days.", mustCall(t, reg, "view_events", map[string]interface{}{}))

	mustCall(t, reg, "create_event", map[string]interface{}{"title": "Later", "start_time": "2026-03-21 10:00", "description": "Bring slides"})
	mustCall(t, reg, "create_event", map[string]interface{}{"title": "Sooner", "start_time": "tomorrow at 2pm", "location": "Café"})
	mustCall(t, reg, "create_event", map[string]interface{}{"title": "Far away", "start_time": "2026-04-30 10:00"})
	mustCall(t, reg, "create_event", map[string]interface{}{"title": "Already over", "start_time": "today"})

	out := mustCall(t, reg, "view_events", map[string]interface{}{})
	assert.Equal(t, "📅 Upcoming events (next 7 days):\n\n"+
		"1. Sooner\n   🕐 Thursday, March 19 at 02:00 PM\n   📍 Café\n\n"+
		"2. Later\n   🕐 Saturday, March 21 at 10:00 AM\n   📝 Bring slides...", out)

	out = mustCall(t, reg, "view_events", map[string]interface{}{"days_ahead": 60, "max_results": 1})
	assert.Contains(t, out, "📅 Upcoming events (next 60 days):\n\n1. Sooner")
	assert.NotContains(t, out, "Later")
}

func TestCheckAvailability(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)
	mustCall(t, reg, "create_event", map[string]interface{}{"title": "Standup", "start_time": "tomorrow at 10am", "duration_minutes": 30})

	out := mustCall(t, reg, "check_availability", map[string]interface{}{"date_time": "tomorrow at 9am", "duration_minutes": 90})
	assert.Equal(t, "❌ Conflict found:\n📅 Thursday, March 19 at 09:00 AM\nConflicts with:\n   • Standup (10:00 AM - 10:30 AM)", out)

	out = mustCall(t, reg, "check_availability", map[string]interface{}{"date_time": "tomorrow at 10:30"})
	assert.Equal(t, "✅ You're free!\n📅 Thursday, March 19 at 10:30 AM\n⏱️ For 60 minutes", out)
}
