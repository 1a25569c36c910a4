// Package scheduler provides the self-renewing timers that trigger the
// default transition. Different entry types (weekly, repeating, periodic)
// implement the Entry interface.
package scheduler

import (
	"time"
)

// Entry is a single source of timed firings.
//
// Entries are anchored to the instant they were armed (construction or the
// last firing), so an entry that became due keeps reporting a non-positive
// span until it is fired, even if the caller wakes up late.
type Entry interface {
	// ID returns the identifier used in logs and the ledger
	ID() string

	// Kind returns a short type name ("weekly", "repeating", "periodic")
	Kind() string

	// Next returns the next due instant, or false if the entry never fires
	Next(now time.Time) (time.Time, bool)

	// Fire is called once the entry is due. It returns the entry that takes
	// this entry's slot, or false if the entry should be removed.
	Fire(now time.Time) (Entry, bool)
}

// Until returns how long until the entry is due. Negative or zero means due.
func Until(e Entry, now time.Time) (time.Duration, bool) {
	next, ok := e.Next(now)
	if !ok {
		return 0, false
	}
	return next.Sub(now), true
}

// Weekly fires once per day at a per-weekday time of day.
// Days without a time are skipped. Weekly always renews itself.
type Weekly struct {
	id     string
	times  [7]*TimeOfDay // indexed by time.Weekday
	cursor time.Time     // midnight of the first day the next firing may fall on
	armed  time.Time
	loc    *time.Location
}

// NewWeekly creates a weekly schedule armed at the given instant.
// The cursor starts on the armed day.
func NewWeekly(id string, times [7]*TimeOfDay, armed time.Time, loc *time.Location) *Weekly {
	if loc == nil {
		loc = time.Local
	}
	w := &Weekly{
		id:     id,
		armed:  armed.In(loc),
		loc:    loc,
		cursor: startOfDay(armed, loc),
	}
	for i, t := range times {
		if t != nil {
			tc := *t
			w.times[i] = &tc
		}
	}
	return w
}

// SameEveryDay creates a weekly schedule with the same time on all seven days.
func SameEveryDay(id string, t TimeOfDay, armed time.Time, loc *time.Location) *Weekly {
	var times [7]*TimeOfDay
	for i := range times {
		times[i] = &t
	}
	return NewWeekly(id, times, armed, loc)
}

func (w *Weekly) ID() string   { return w.id }
func (w *Weekly) Kind() string { return "weekly" }

// Cursor returns the weekday the search for the next firing starts on.
func (w *Weekly) Cursor() time.Weekday { return w.cursor.Weekday() }

// Location returns the time zone the times of day are interpreted in.
func (w *Weekly) Location() *time.Location { return w.loc }

// Day returns the time of day configured for a weekday, or nil if disabled.
func (w *Weekly) Day(day time.Weekday) *TimeOfDay {
	if t := w.times[day]; t != nil {
		tc := *t
		return &tc
	}
	return nil
}

// SetDay changes the time for one weekday; nil disables the day.
// The entry is re-armed at now so that a time earlier today does not fire
// retroactively.
func (w *Weekly) SetDay(day time.Weekday, t *TimeOfDay, now time.Time) {
	if t != nil {
		tc := *t
		t = &tc
	}
	w.times[day] = t
	if now.After(w.armed) {
		w.armed = now.In(w.loc)
	}
}

// Next scans forward from the cursor day for the first configured time
// after the armed instant. Eight days are checked so the cursor day of the
// following week is included.
func (w *Weekly) Next(time.Time) (time.Time, bool) {
	start := w.cursor
	if armedDay := startOfDay(w.armed, w.loc); armedDay.After(start) {
		start = armedDay
	}

	for i := 0; i < 8; i++ {
		day := start.AddDate(0, 0, i)
		t := w.times[day.Weekday()]
		if t == nil {
			continue
		}
		if at := t.On(day, w.loc); at.After(w.armed) {
			return at, true
		}
	}

	return time.Time{}, false
}

// Fire advances the cursor to the day after the firing and renews the entry.
func (w *Weekly) Fire(now time.Time) (Entry, bool) {
	if at, ok := w.Next(now); ok {
		w.cursor = startOfDay(at, w.loc).AddDate(0, 0, 1)
	} else {
		w.cursor = w.cursor.AddDate(0, 0, 1)
	}
	if now.After(w.armed) {
		w.armed = now.In(w.loc)
	}
	return w, true
}

// Repeating fires at a single time of day.
//
// Fire does not renew the entry: as an auxiliary schedule it is a one-shot.
// Wrap it or use Periodic for a schedule that keeps firing.
type Repeating struct {
	id    string
	time  TimeOfDay
	armed time.Time
	loc   *time.Location
}

// NewRepeating creates a repeating schedule armed at the given instant.
func NewRepeating(id string, t TimeOfDay, armed time.Time, loc *time.Location) *Repeating {
	if loc == nil {
		loc = time.Local
	}
	return &Repeating{id: id, time: t, armed: armed.In(loc), loc: loc}
}

func (r *Repeating) ID() string   { return r.id }
func (r *Repeating) Kind() string { return "repeating" }

// TimeOfDay returns the configured time.
func (r *Repeating) TimeOfDay() TimeOfDay { return r.time }

// Next returns today's time if it is still ahead of the armed instant,
// otherwise tomorrow's.
func (r *Repeating) Next(time.Time) (time.Time, bool) {
	day := startOfDay(r.armed, r.loc)
	if at := r.time.On(day, r.loc); at.After(r.armed) {
		return at, true
	}
	return r.time.On(day.AddDate(0, 0, 1), r.loc), true
}

func (r *Repeating) Fire(time.Time) (Entry, bool) {
	return nil, false
}

// Periodic fires at a fixed interval from its start instant and renews itself.
type Periodic struct {
	id        string
	interval  time.Duration
	startTime time.Time
	armed     time.Time
}

// NewPeriodic creates a periodic schedule whose first firing is one interval
// after start. The interval must be positive.
func NewPeriodic(id string, interval time.Duration, start time.Time) *Periodic {
	return &Periodic{
		id:        id,
		interval:  interval,
		startTime: start,
		armed:     start,
	}
}

func (p *Periodic) ID() string   { return p.id }
func (p *Periodic) Kind() string { return "periodic" }

// Interval returns the schedule interval for display.
func (p *Periodic) Interval() time.Duration { return p.interval }

// Next returns the first tick strictly after the armed instant.
func (p *Periodic) Next(time.Time) (time.Time, bool) {
	if p.interval <= 0 {
		return time.Time{}, false
	}

	elapsed := p.armed.Sub(p.startTime)
	ticks := int64(elapsed / p.interval)
	return p.startTime.Add(time.Duration(ticks+1) * p.interval), true
}

// Fire re-arms at now; ticks missed while the loop was busy are skipped.
func (p *Periodic) Fire(now time.Time) (Entry, bool) {
	if now.After(p.armed) {
		p.armed = now
	}
	return p, true
}
