package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/chatagent/agentloop"
	"github.com/martinemde/chatagent/store"
)

const (
	eventTimeLayout = "2006-01-02 03:04 PM"
	clockLayout     = "03:04 PM"
	longDateLayout  = "Monday, January 02 at 03:04 PM"
	maxEventResults = 50
)

// absoluteLayouts are tried in order before the relative forms.
var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 3pm",
	"2006-01-02 3:04pm",
	"2006-01-02 3 pm",
	"2006-01-02 3:04 pm",
	"2006-01-02",
}

var clockRegex = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseDateTime interprets s relative to now. It accepts ISO-style dates with
// an optional time, and "today", "tomorrow", "next week" or a weekday name
// followed by an optional "at 2pm" / "at 14:00". Missing times default to
// 09:00.
func ParseDateTime(s string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(raw)
	loc := now.Location()
	for _, layout := range absoluteLayouts {
		for _, candidate := range []string{raw, lower} {
			t, err := time.ParseInLocation(layout, candidate, loc)
			if err != nil {
				continue
			}
			if layout == "2006-01-02" {
				t = time.Date(t.Year(), t.Month(), t.Day(), 9, 0, 0, 0, loc)
			}
			return t, nil
		}
	}

	dayPart, clockPart, _ := strings.Cut(lower, " at ")
	dayPart = strings.TrimSpace(dayPart)

	hour, minute := 9, 0
	if clockPart = strings.TrimSpace(clockPart); clockPart != "" {
		h, m, ok := parseClock(clockPart)
		if !ok {
			return time.Time{}, fmt.Errorf("unrecognized time %q", clockPart)
		}
		hour, minute = h, m
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	var day time.Time
	switch {
	case dayPart == "today":
		day = today
	case dayPart == "tomorrow":
		day = today.AddDate(0, 0, 1)
	case dayPart == "next week":
		day = today.AddDate(0, 0, 7)
	default:
		name := strings.TrimPrefix(dayPart, "next ")
		wd, ok := weekdays[name]
		if !ok {
			return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
		}
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		day = today.AddDate(0, 0, ahead)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

func parseClock(s string) (hour, minute int, ok bool) {
	m := clockRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func dateError(input string) string {
	return fmt.Sprintf("Error: Could not understand the date/time '%s'. Use a format like '2024-03-20 14:00' or 'tomorrow at 2pm'.", input)
}

func registerCreateEvent(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "create_event",
			Description: "Create a new calendar event. Can specify title, time, duration, location, and attendees.",
			Parameters: objectSchema(map[string]interface{}{
				"title":            stringProp("Event title/name"),
				"start_time":       stringProp("Start time (flexible formats: '2024-03-20 14:00', 'tomorrow at 2pm', 'next Monday at 9am')"),
				"duration_minutes": intProp("Event duration in minutes (default: 60)", 60),
				"description":      stringProp("Event description/notes (optional)"),
				"location":         stringProp("Event location (optional)"),
				"attendees":        stringProp("Comma-separated email addresses of attendees (optional)"),
			}, "title", "start_time"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			title, err := requiredString(args, "title")
			if err != nil {
				return "", err
			}
			startRaw, err := requiredString(args, "start_time")
			if err != nil {
				return "", err
			}
			duration := intArg(args, "duration_minutes", 60, 1, 0)
			description, _ := agentloop.GetStringArg(args, "description")
			location, _ := agentloop.GetStringArg(args, "location")
			attendees, _ := agentloop.GetStringArg(args, "attendees")

			start, err := ParseDateTime(startRaw, d.Now())
			if err != nil {
				return dateError(startRaw), nil
			}
			return createEvent(ctx, d, store.Event{
				Title:       title,
				Start:       start,
				End:         start.Add(time.Duration(duration) * time.Minute),
				Description: description,
				Location:    location,
				Attendees:   splitAddresses(attendees),
			}), nil
		},
	})
}

func createEvent(ctx context.Context, d Deps, ev store.Event) string {
	created, err := d.DB.CreateEvent(ctx, ev)
	if err != nil {
		return fmt.Sprintf("Error creating event: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("✅ Event created successfully!\n")
	fmt.Fprintf(&sb, "📅 %s\n", created.Title)
	fmt.Fprintf(&sb, "🕐 %s - %s\n", created.Start.Format(eventTimeLayout), created.End.Format(clockLayout))
	if created.Location != "" {
		fmt.Fprintf(&sb, "📍 %s\n", created.Location)
	}
	if len(created.Attendees) > 0 {
		fmt.Fprintf(&sb, "👥 %s\n", strings.Join(created.Attendees, ", "))
	}
	fmt.Fprintf(&sb, "\n🔗 Event ID: %s", created.ID)
	return sb.String()
}

func registerViewEvents(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "view_events",
			Description: "View upcoming calendar events. Shows events for the next 7 days by default.",
			Parameters: objectSchema(map[string]interface{}{
				"days_ahead":  intProp("Number of days to look ahead (default: 7)", 7),
				"max_results": intProp("Maximum number of events to show (default: 10)", 10),
			}),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			days := intArg(args, "days_ahead", 7, 1, 366)
			limit := intArg(args, "max_results", 10, 1, maxEventResults)
			return viewEvents(ctx, d, days, limit), nil
		},
	})
}

func viewEvents(ctx context.Context, d Deps, days, limit int) string {
	now := d.Now()
	events, err := d.DB.EventsBetween(ctx, now, now.AddDate(0, 0, days), limit)
	if err != nil {
		return fmt.Sprintf("Error viewing events: %v", err)
	}
	if len(events) == 0 {
		return fmt.Sprintf("No events found in the next %d days.", days)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 Upcoming events (next %d days):\n\n", days)
	for i, ev := range events {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, ev.Title)
		fmt.Fprintf(&sb, "   🕐 %s\n", ev.Start.In(now.Location()).Format(longDateLayout))
		if ev.Location != "" {
			fmt.Fprintf(&sb, "   📍 %s\n", ev.Location)
		}
		if ev.Description != "" {
			fmt.Fprintf(&sb, "   📝 %s...\n", previewText(ev.Description, 100))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func registerCheckAvailability(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "check_availability",
			Description: "Check if a specific time slot is available in the calendar. Useful for scheduling meetings.",
			Parameters: objectSchema(map[string]interface{}{
				"date_time":        stringProp("Date and time to check (e.g., '2024-03-20 14:00', 'tomorrow at 2pm', 'Friday at 3pm')"),
				"duration_minutes": intProp("Duration to check in minutes (default: 60)", 60),
			}, "date_time"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			raw, err := requiredString(args, "date_time")
			if err != nil {
				return "", err
			}
			duration := intArg(args, "duration_minutes", 60, 1, 0)
			start, err := ParseDateTime(raw, d.Now())
			if err != nil {
				return dateError(raw), nil
			}
			return checkAvailability(ctx, d, start, duration), nil
		},
	})
}

func checkAvailability(ctx context.Context, d Deps, start time.Time, minutes int) string {
	conflicts, err := d.DB.Conflicts(ctx, start, start.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return fmt.Sprintf("Error checking availability: %v", err)
	}
	when := start.Format(longDateLayout)
	if len(conflicts) == 0 {
		return fmt.Sprintf("✅ You're free!\n📅 %s\n⏱️ For %d minutes", when, minutes)
	}

	lines := make([]string, len(conflicts))
	for i, ev := range conflicts {
		lines[i] = fmt.Sprintf("   • %s (%s - %s)", ev.Title,
			ev.Start.In(start.Location()).Format(clockLayout), ev.End.In(start.Location()).Format(clockLayout))
	}
	return fmt.Sprintf("❌ Conflict found:\n📅 %s\nConflicts with:\n%s", when, strings.Join(lines, "\n"))
}
