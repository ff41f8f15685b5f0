package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"golang.org/x/text/language"

	"venuecal/internal/calendar"
	appLog "venuecal/internal/log"
)

const (
	// DefaultCap bounds the number of instances one generation may emit.
	DefaultCap = 500

	// maxCandidates bounds the candidates inspected per generation, so a
	// rule whose candidates are mostly excepted still terminates.
	maxCandidates = 100_000
)

var (
	// ErrHorizonRequired is returned for open-ended rules generated
	// without Options.Until or Options.Limit.
	ErrHorizonRequired = errors.New("recurrence: open-ended rule needs an explicit horizon")
	ErrInvalidRule     = errors.New("recurrence: rule was not built with NewRule")
)

// Instance is one concrete occurrence derived from a rule. OccurrenceDate
// identifies the slot in the rule; Date is where the instance actually
// takes place and only differs once a materialized event has been moved.
type Instance struct {
	Date           calendar.Date `json:"date"`
	OccurrenceDate calendar.Date `json:"occurrenceDate"`
	TimeStart      string        `json:"timeStart,omitempty"`
	TimeEnd        string        `json:"timeEnd,omitempty"`
	FormattedDate  string        `json:"formattedDate"`
	IsVirtual      bool          `json:"isVirtual"`
	OriginEventID  uint          `json:"originEventId,omitempty"`
	RealEventID    uint          `json:"realEventId,omitempty"`
}

// Options bounds and decorates a generation.
type Options struct {
	// Until stops generation before this date (exclusive).
	Until mo.Option[calendar.Date]
	// Limit stops generation after this many instances. Zero means no limit.
	Limit int
	// Cap is the safety cap; DefaultCap when zero.
	Cap int

	Locale   language.Tag
	Location *time.Location

	OriginEventID uint
}

// Result holds the generated instances. Capped is set when the safety cap
// cut the sequence short; this is a truncation, not an error.
type Result struct {
	Instances []Instance
	Capped    bool
}

// Generate expands rule into ascending, one-per-date virtual instances,
// skipping dates in exceptions. Excepted dates do not count toward a
// ByCount termination. On error no partial result is returned.
func Generate(rule Rule, exceptions *ExceptionSet, opts Options) (Result, error) {
	if rule.schedule == nil {
		return Result{}, ErrInvalidRule
	}
	if err := rule.start.Validate(); err != nil {
		return Result{}, err
	}
	if !rule.Finite() && opts.Until.IsAbsent() && opts.Limit <= 0 {
		return Result{}, ErrHorizonRequired
	}

	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultCap
	}

	next, err := rule.schedule.candidates(rule.start)
	if err != nil {
		return Result{}, fmt.Errorf("generate %s: %w", rule.Pattern(), err)
	}

	var (
		out    = make([]Instance, 0)
		last   calendar.Date
		capped bool
	)

	for seen := 0; ; seen++ {
		if seen >= maxCandidates {
			capped = true
			break
		}
		d, ok := next()
		if !ok {
			break
		}
		if err := d.Validate(); err != nil {
			return Result{}, fmt.Errorf("generate %s: %w", rule.Pattern(), err)
		}
		if !last.IsZero() && !d.After(last) {
			continue
		}
		last = d

		if rule.end.Mode == ByDate && d.After(rule.end.EndDate) {
			break
		}
		if until, ok := opts.Until.Get(); ok && !d.Before(until) {
			break
		}
		if exceptions.Has(d) {
			continue
		}
		if len(out) >= limit {
			capped = true
			break
		}

		out = append(out, Instance{
			Date:           d,
			OccurrenceDate: d,
			TimeStart:      rule.timeStart,
			TimeEnd:        rule.timeEnd,
			FormattedDate:  calendar.FormatLocal(d, opts.Locale, opts.Location),
			IsVirtual:      true,
			OriginEventID:  opts.OriginEventID,
		})

		if rule.end.Mode == ByCount && len(out) >= rule.end.Count {
			break
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}

	if capped {
		appLog.Warn("generate: truncated at safety cap",
			"pattern", rule.Pattern().String(),
			"start", rule.start.String(),
			"cap", limit,
			"origin_event_id", opts.OriginEventID,
		)
	}

	return Result{Instances: out, Capped: capped}, nil
}

// Occurs reports whether rule produces date, honoring exceptions.
func Occurs(rule Rule, exceptions *ExceptionSet, date calendar.Date) (bool, error) {
	if date.Before(rule.start) {
		return false, nil
	}
	res, err := Generate(rule, exceptions, Options{
		Until: mo.Some(date.AddDays(1)),
		Cap:   maxCandidates,
	})
	if err != nil {
		return false, err
	}
	n := len(res.Instances)
	return n > 0 && res.Instances[n-1].Date == date, nil
}
