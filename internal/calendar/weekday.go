package calendar

import (
	"fmt"
	"time"
)

// Weekday is an ISO-8601 weekday: Monday = 1 ... Sunday = 7.
//
// Persisted weekday selections use this numbering. Go's time.Weekday counts
// Sunday = 0; ISOWeekday is the only place the two are converted.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// ISOWeekday returns the ISO weekday of t in t's own location.
func ISOWeekday(t time.Time) Weekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

// ParseWeekday validates an ISO weekday number.
func ParseWeekday(n int) (Weekday, error) {
	w := Weekday(n)
	if !w.Valid() {
		return 0, fmt.Errorf("weekday %d out of range 1..7", n)
	}
	return w, nil
}

func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return englishWeekdays[w-1]
}
