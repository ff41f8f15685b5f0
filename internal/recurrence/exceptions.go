package recurrence

import (
	"maps"
	"slices"

	"venuecal/internal/calendar"
)

// ExceptionEntry is one excluded date with its free-text reason.
type ExceptionEntry struct {
	Date   calendar.Date `json:"date"`
	Reason string        `json:"reason"`
}

// ExceptionSet maps excluded dates to reasons. It does not check that a
// date is an actual occurrence; an exception for any other day is inert.
// The zero value is ready to use. Not safe for concurrent mutation.
type ExceptionSet struct {
	entries map[calendar.Date]string
}

// NewExceptionSet builds a set from entries; later duplicates win.
func NewExceptionSet(entries ...ExceptionEntry) *ExceptionSet {
	s := &ExceptionSet{}
	for _, e := range entries {
		s.Add(e.Date, e.Reason)
	}
	return s
}

// Add inserts or replaces the exception for date.
func (s *ExceptionSet) Add(date calendar.Date, reason string) {
	if s.entries == nil {
		s.entries = make(map[calendar.Date]string)
	}
	s.entries[date] = reason
}

// Remove deletes the exception for date. Absent dates are ignored.
func (s *ExceptionSet) Remove(date calendar.Date) {
	delete(s.entries, date)
}

// Has reports whether date is excluded. A nil set excludes nothing.
func (s *ExceptionSet) Has(date calendar.Date) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[date]
	return ok
}

// Reason returns the reason recorded for date.
func (s *ExceptionSet) Reason(date calendar.Date) (string, bool) {
	if s == nil {
		return "", false
	}
	r, ok := s.entries[date]
	return r, ok
}

func (s *ExceptionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// List returns all exceptions in ascending date order.
func (s *ExceptionSet) List() []ExceptionEntry {
	if s == nil {
		return nil
	}
	dates := slices.SortedFunc(maps.Keys(s.entries), calendar.Date.Compare)
	out := make([]ExceptionEntry, 0, len(dates))
	for _, d := range dates {
		out = append(out, ExceptionEntry{Date: d, Reason: s.entries[d]})
	}
	return out
}

// Clone returns an independent copy of s.
func (s *ExceptionSet) Clone() *ExceptionSet {
	if s == nil {
		return &ExceptionSet{}
	}
	return &ExceptionSet{entries: maps.Clone(s.entries)}
}
