package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

var (
	// Match "08:47" or "08:47:30"
	timeOfDayPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

	weekdayNames = map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
)

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)

	matches := timeOfDayPattern.FindStringSubmatch(s)
	if matches == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}

	hour, _ := strconv.Atoi(matches[1])
	min, _ := strconv.Atoi(matches[2])
	sec := 0
	if matches[3] != "" {
		sec, _ = strconv.Atoi(matches[3])
	}

	if hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %d", hour)
	}
	if min > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %d", min)
	}
	if sec > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid second: %d", sec)
	}

	return TimeOfDay{Hour: hour, Minute: min, Second: sec}, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for constants; it panics on error.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// On returns the instant this time of day falls on for the given date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	date = date.In(loc)
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseWeekday accepts full or three-letter English day names, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if day, ok := weekdayNames[name]; ok {
		return day, nil
	}
	if len(name) == 3 {
		for full, day := range weekdayNames {
			if strings.HasPrefix(full, name) {
				return day, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid weekday: %q", s)
}

// startOfDay truncates t to local midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
