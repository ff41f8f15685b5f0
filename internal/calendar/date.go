package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDate is returned for malformed or out-of-range calendar dates.
var ErrInvalidDate = errors.New("invalid date")

// Layout is the persisted date form (YYYY-MM-DD).
const Layout = "2006-01-02"

// Date is a calendar day with no time-of-day and no zone. All recurrence
// arithmetic happens on Date values; a zone only enters when a Date is
// rendered or compared against wall-clock time (see Time).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate validates y/m/d and returns the corresponding Date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	d := Date{Year: year, Month: month, Day: day}
	if err := d.Validate(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// MustDate is NewDate for literals known to be valid.
func MustDate(year int, month time.Month, day int) Date {
	d, err := NewDate(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDate parses a YYYY-MM-DD string. Surrounding whitespace is ignored.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar day in loc (time.Local when nil).
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// Validate reports whether d names a real calendar day.
func (d Date) Validate() error {
	if d.Year < 1 || d.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, d.Year)
	}
	if d.Month < time.January || d.Month > time.December {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidDate, d.Month)
	}
	if d.Day < 1 || d.Day > DaysInMonth(d.Year, d.Month) {
		return fmt.Errorf("%w: day %d out of range for %04d-%02d", ErrInvalidDate, d.Day, d.Year, d.Month)
	}
	return nil
}

// IsZero reports whether d is the zero Date (an absent value).
func (d Date) IsZero() bool {
	return d == Date{}
}

// String renders d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns local midnight of d in loc (time.Local when nil).
//
// Date-only values must never be interpreted as UTC midnight: in zones west
// of UTC that renders as the previous day.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// utc is the arithmetic carrier; UTC has no DST so day steps are exact.
func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1 as d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.utc().AddDate(0, 0, n))
}

// AddWeeks returns d shifted by n weeks.
func (d Date) AddWeeks(n int) Date {
	return d.AddDays(7 * n)
}

// AddMonths returns d shifted by n months. When the source day does not
// exist in the target month the result is clamped to that month's last day
// (Jan 31 + 1 month = Feb 28/29) instead of rolling into the next month.
func (d Date) AddMonths(n int) Date {
	total := d.Year*12 + int(d.Month-1) + n
	year := total / 12
	month := time.Month(total%12 + 1)
	if total%12 < 0 {
		year--
		month += 12
	}
	day := min(d.Day, DaysInMonth(year, month))
	return Date{Year: year, Month: month, Day: day}
}

// DaysInMonth returns the number of days in month of year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Weekday returns the ISO weekday of d.
func (d Date) Weekday() Weekday {
	return ISOWeekday(d.utc())
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value leaves
// the zero Date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
