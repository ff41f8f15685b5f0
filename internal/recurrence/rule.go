package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"venuecal/internal/calendar"
)

var (
	ErrMissingStartDate  = errors.New("recurrence: start date is required")
	ErrEmptyCustomDates  = errors.New("recurrence: custom pattern needs at least one date")
	ErrInvalidCustomDate = errors.New("recurrence: invalid custom date")
	ErrInvalidWeekday    = errors.New("recurrence: invalid weekday")
	ErrMissingEndDate    = errors.New("recurrence: end date is required when ending by date")
	ErrUnknownPattern    = errors.New("recurrence: unknown pattern")
	ErrUnknownEndType    = errors.New("recurrence: unknown end type")
)

// DefaultOccurrenceCount applies to count-terminated rules without a usable count.
const DefaultOccurrenceCount = 10

// Pattern names the repetition shape of a rule.
type Pattern int

const (
	Daily Pattern = iota + 1
	Weekly
	Monthly
	Custom
)

func (p Pattern) String() string {
	switch p {
	case Daily:
		return PatternDaily
	case Weekly:
		return PatternWeekly
	case Monthly:
		return PatternMonthly
	case Custom:
		return PatternCustom
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// TerminationMode is the stopping condition of a rule.
type TerminationMode int

const (
	None TerminationMode = iota
	ByDate
	ByCount
)

// Termination describes when generation stops. EndDate is inclusive and
// only meaningful for ByDate; Count only for ByCount.
type Termination struct {
	Mode    TerminationMode
	EndDate calendar.Date
	Count   int
}

// Rule is a validated, immutable recurrence description. Build one with
// NewRule; the zero value is not usable.
type Rule struct {
	start     calendar.Date
	timeStart string
	timeEnd   string
	schedule  Schedule
	end       Termination
}

func (r Rule) Start() calendar.Date     { return r.start }
func (r Rule) TimeStart() string        { return r.timeStart }
func (r Rule) TimeEnd() string          { return r.timeEnd }
func (r Rule) Termination() Termination { return r.end }
func (r Rule) Pattern() Pattern         { return r.schedule.Pattern() }

// Schedule returns the pattern-specific part of the rule. Slices in the
// returned value are copies.
func (r Rule) Schedule() Schedule {
	switch s := r.schedule.(type) {
	case WeeklySchedule:
		s.Weekdays = slices.Clone(s.Weekdays)
		return s
	case CustomSchedule:
		s.Dates = slices.Clone(s.Dates)
		return s
	}
	return r.schedule
}

// Finite reports whether the rule stops on its own, without a horizon.
func (r Rule) Finite() bool {
	return r.end.Mode != None || r.schedule.Pattern() == Custom
}

// NewRule validates raw form input and normalizes it into a Rule.
func NewRule(raw RawRule) (Rule, error) {
	if strings.TrimSpace(raw.StartDate) == "" {
		return Rule{}, ErrMissingStartDate
	}
	start, err := calendar.ParseDate(raw.StartDate)
	if err != nil {
		return Rule{}, fmt.Errorf("start date: %w", err)
	}

	r := Rule{
		start:     start,
		timeStart: strings.TrimSpace(raw.TimeStart),
		timeEnd:   strings.TrimSpace(raw.TimeEnd),
	}

	interval := max(raw.Interval, 1)

	switch strings.ToLower(strings.TrimSpace(raw.Pattern)) {
	case PatternDaily:
		r.schedule = DailySchedule{Interval: interval}
	case PatternWeekly:
		days, err := parseWeekdays(raw.Weekdays)
		if err != nil {
			return Rule{}, err
		}
		if len(days) == 0 {
			days = []calendar.Weekday{start.Weekday()}
		}
		r.schedule = WeeklySchedule{Interval: interval, Weekdays: days}
	case PatternMonthly:
		r.schedule = MonthlySchedule{Interval: interval, Day: start.Day}
	case PatternCustom:
		dates, err := parseCustomDates(raw.CustomDates)
		if err != nil {
			return Rule{}, err
		}
		r.schedule = CustomSchedule{Dates: dates}
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownPattern, raw.Pattern)
	}

	end, err := parseTermination(raw)
	if err != nil {
		return Rule{}, err
	}
	r.end = end

	return r, nil
}

func parseWeekdays(nums []int) ([]calendar.Weekday, error) {
	days := make([]calendar.Weekday, 0, len(nums))
	for _, n := range nums {
		wd, err := calendar.ParseWeekday(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWeekday, err)
		}
		if !slices.Contains(days, wd) {
			days = append(days, wd)
		}
	}
	slices.Sort(days)
	return days, nil
}

// parseCustomDates accepts one date per entry; entries may also carry
// several newline-separated dates (textarea input). Blank lines are dropped.
func parseCustomDates(entries []string) ([]calendar.Date, error) {
	var dates []calendar.Date
	for _, entry := range entries {
		for _, line := range strings.Split(entry, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			d, err := calendar.ParseDate(line)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCustomDate, line)
			}
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, ErrEmptyCustomDates
	}
	slices.SortFunc(dates, calendar.Date.Compare)
	return slices.Compact(dates), nil
}

func parseTermination(raw RawRule) (Termination, error) {
	endType := strings.ToLower(strings.TrimSpace(raw.EndType))
	if endType == "" {
		switch {
		case strings.TrimSpace(raw.EndDate) != "":
			endType = EndTypeDate
		case raw.EndCount > 0:
			endType = EndTypeCount
		default:
			endType = EndTypeNone
		}
	}

	switch endType {
	case EndTypeDate:
		if strings.TrimSpace(raw.EndDate) == "" {
			return Termination{}, ErrMissingEndDate
		}
		end, err := calendar.ParseDate(raw.EndDate)
		if err != nil {
			return Termination{}, fmt.Errorf("end date: %w", err)
		}
		return Termination{Mode: ByDate, EndDate: end}, nil
	case EndTypeCount:
		count := raw.EndCount
		if count <= 0 {
			count = DefaultOccurrenceCount
		}
		return Termination{Mode: ByCount, Count: count}, nil
	case EndTypeNone:
		return Termination{Mode: None}, nil
	}
	return Termination{}, fmt.Errorf("%w: %q", ErrUnknownEndType, raw.EndType)
}

// Raw returns the normalized persisted layout of r. NewRule(r.Raw())
// yields an equivalent rule.
func (r Rule) Raw() RawRule {
	raw := RawRule{
		Pattern:   r.schedule.Pattern().String(),
		StartDate: r.start.String(),
		TimeStart: r.timeStart,
		TimeEnd:   r.timeEnd,
	}

	switch s := r.schedule.(type) {
	case DailySchedule:
		raw.Interval = s.Interval
	case WeeklySchedule:
		raw.Interval = s.Interval
		for _, wd := range s.Weekdays {
			raw.Weekdays = append(raw.Weekdays, int(wd))
		}
	case MonthlySchedule:
		raw.Interval = s.Interval
	case CustomSchedule:
		for _, d := range s.Dates {
			raw.CustomDates = append(raw.CustomDates, d.String())
		}
	}

	switch r.end.Mode {
	case ByDate:
		raw.EndType = EndTypeDate
		raw.EndDate = r.end.EndDate.String()
	case ByCount:
		raw.EndType = EndTypeCount
		raw.EndCount = r.end.Count
	default:
		raw.EndType = EndTypeNone
	}
	return raw
}
