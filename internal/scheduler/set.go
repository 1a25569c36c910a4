package scheduler

import (
	"time"
)

// Set holds the primary weekly schedule plus any auxiliary entries added at
// runtime. The primary entry is never removed.
//
// Set is not safe for concurrent use; it is owned by the decision engine.
type Set struct {
	primary *Weekly
	aux     []Entry
}

// NewSet creates a set around the primary weekly schedule.
func NewSet(primary *Weekly) *Set {
	if primary == nil {
		panic("scheduler: primary schedule is required")
	}
	return &Set{primary: primary}
}

// Primary returns the primary weekly schedule.
func (s *Set) Primary() *Weekly {
	return s.primary
}

// Add inserts an auxiliary entry.
func (s *Set) Add(e Entry) {
	s.aux = append(s.aux, e)
}

// ClearAuxiliary removes every auxiliary entry and returns how many were removed.
func (s *Set) ClearAuxiliary() int {
	n := len(s.aux)
	s.aux = nil
	return n
}

// Len returns the number of entries including the primary.
func (s *Set) Len() int {
	return 1 + len(s.aux)
}

// Entries returns a snapshot of all entries, primary first.
func (s *Set) Entries() []Entry {
	entries := make([]Entry, 0, s.Len())
	entries = append(entries, s.primary)
	entries = append(entries, s.aux...)
	return entries
}

// NextFire returns the shortest span until any entry is due.
// It returns false when no entry will ever fire.
func (s *Set) NextFire(now time.Time) (time.Duration, bool) {
	var (
		best  time.Duration
		found bool
	)
	for _, e := range s.Entries() {
		d, ok := Until(e, now)
		if !ok {
			continue
		}
		if !found || d < best {
			best = d
			found = true
		}
	}
	return best, found
}

// FireDue fires every entry that is due at now. Renewed entries replace
// themselves in their slot; entries without a renewal are dropped.
// Returns the entries that fired.
func (s *Set) FireDue(now time.Time) []Entry {
	var fired []Entry

	if d, ok := Until(s.primary, now); ok && d <= 0 {
		fired = append(fired, s.primary)
		if renewed, ok := s.primary.Fire(now); ok {
			if w, isWeekly := renewed.(*Weekly); isWeekly {
				s.primary = w
			}
		}
	}

	kept := s.aux[:0]
	for _, e := range s.aux {
		d, ok := Until(e, now)
		if !ok || d > 0 {
			kept = append(kept, e)
			continue
		}
		fired = append(fired, e)
		if renewed, ok := e.Fire(now); ok && renewed != nil {
			kept = append(kept, renewed)
		}
	}
	for i := len(kept); i < len(s.aux); i++ {
		s.aux[i] = nil
	}
	s.aux = kept

	return fired
}
