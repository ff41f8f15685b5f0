package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"venuecal/internal/calendar"
)

// Schedule is the pattern-specific half of a Rule. The set of
// implementations is closed, one per Pattern.
type Schedule interface {
	Pattern() Pattern
	// candidates returns an iterator over ascending candidate dates that
	// are on or after start. ok=false means the schedule is exhausted.
	candidates(start calendar.Date) (func() (calendar.Date, bool), error)
}

// DailySchedule repeats every Interval days.
type DailySchedule struct {
	Interval int
}

// WeeklySchedule repeats on Weekdays in every Interval-th week. Weeks start
// on Monday and are counted from the week that contains the start date.
type WeeklySchedule struct {
	Interval int
	Weekdays []calendar.Weekday
}

// MonthlySchedule repeats every Interval months on Day, clamped to the month end.
type MonthlySchedule struct {
	Interval int
	Day      int
}

// CustomSchedule is an explicit, ascending, duplicate-free list of dates.
type CustomSchedule struct {
	Dates []calendar.Date
}

func (DailySchedule) Pattern() Pattern   { return Daily }
func (WeeklySchedule) Pattern() Pattern  { return Weekly }
func (MonthlySchedule) Pattern() Pattern { return Monthly }
func (CustomSchedule) Pattern() Pattern  { return Custom }

var rruleWeekdays = map[calendar.Weekday]rrule.Weekday{
	calendar.Monday:    rrule.MO,
	calendar.Tuesday:   rrule.TU,
	calendar.Wednesday: rrule.WE,
	calendar.Thursday:  rrule.TH,
	calendar.Friday:    rrule.FR,
	calendar.Saturday:  rrule.SA,
	calendar.Sunday:    rrule.SU,
}

func (s DailySchedule) candidates(start calendar.Date) (func() (calendar.Date, bool), error) {
	return rruleIterator(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: s.Interval,
		Dtstart:  start.Time(time.UTC),
	})
}

func (s WeeklySchedule) candidates(start calendar.Date) (func() (calendar.Date, bool), error) {
	days := make([]rrule.Weekday, 0, len(s.Weekdays))
	for _, wd := range s.Weekdays {
		rw, ok := rruleWeekdays[wd]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(wd))
		}
		days = append(days, rw)
	}
	return rruleIterator(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  s.Interval,
		Dtstart:   start.Time(time.UTC),
		Byweekday: days,
		Wkst:      rrule.MO,
	})
}

// rruleIterator drives an open-ended rrule and maps its UTC midnights back
// onto calendar dates. Termination is handled by the generator, not the
// rrule, because excepted dates must not count toward an occurrence count.
func rruleIterator(opt rrule.ROption) (func() (calendar.Date, bool), error) {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	next := r.Iterator()
	return func() (calendar.Date, bool) {
		t, ok := next()
		if !ok {
			return calendar.Date{}, false
		}
		return calendar.DateOf(t.In(time.UTC)), true
	}, nil
}

// candidates always offsets from the rule start so that a clamped
// month does not drag later months down (Jan 31, Feb 28, Mar 31).
func (s MonthlySchedule) candidates(start calendar.Date) (func() (calendar.Date, bool), error) {
	k := 0
	return func() (calendar.Date, bool) {
		d := start.AddMonths(k * s.Interval)
		if d.Year > 9999 {
			return calendar.Date{}, false
		}
		k++
		return d, true
	}, nil
}

func (s CustomSchedule) candidates(start calendar.Date) (func() (calendar.Date, bool), error) {
	i := 0
	return func() (calendar.Date, bool) {
		for i < len(s.Dates) {
			d := s.Dates[i]
			i++
			if !d.Before(start) {
				return d, true
			}
		}
		return calendar.Date{}, false
	}, nil
}
