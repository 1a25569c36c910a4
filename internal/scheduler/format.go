package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// weekOrder lists days Monday first for display.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// FormatWeek returns a human-readable table of the weekly schedule.
// The cursor day is marked with ">".
func FormatWeek(w *Weekly, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Weekly schedule %q (timezone: %s)\n", w.ID(), w.loc.String()))
	sb.WriteString(fmt.Sprintf("%-3s %-12s %s\n", "", "DAY", "TIME"))
	sb.WriteString(strings.Repeat("-", 30) + "\n")

	for _, day := range weekOrder {
		marker := ""
		if day == w.Cursor() {
			marker = ">"
		}
		timeStr := "-"
		if t := w.times[day]; t != nil {
			timeStr = t.String()
		}
		sb.WriteString(fmt.Sprintf("%-3s %-12s %s\n", marker, day.String(), timeStr))
	}

	sb.WriteString(formatNext(w, now, w.loc))
	return sb.String()
}

// FormatSet returns the weekly table followed by the auxiliary entries.
func FormatSet(s *Set, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(FormatWeek(s.primary, now))
	sb.WriteString("\n")

	if len(s.aux) == 0 {
		sb.WriteString("No auxiliary schedules\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%-40s %-10s %s\n", "ID", "KIND", "NEXT"))
	sb.WriteString(strings.Repeat("-", 80) + "\n")
	for _, e := range s.aux {
		next := "never"
		if at, ok := e.Next(now); ok {
			next = at.In(s.primary.loc).Format("2006-01-02 15:04:05")
		}
		sb.WriteString(fmt.Sprintf("%-40s %-10s %s\n", e.ID(), e.Kind(), next))
	}
	return sb.String()
}

func formatNext(e Entry, now time.Time, loc *time.Location) string {
	at, ok := e.Next(now)
	if !ok {
		return "Next: never\n"
	}
	return fmt.Sprintf("Next: %s (in %s)\n",
		at.In(loc).Format("Mon 2006-01-02 15:04:05"),
		at.Sub(now).Round(time.Second))
}
