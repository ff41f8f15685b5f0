package preview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"
	"golang.org/x/text/language"

	"venuecal/internal/metrics"
	"venuecal/internal/model"
	"venuecal/internal/recurrence"
)

var ErrInvalidHorizon = errors.New("preview: invalid horizon")

type HorizonMode string

const (
	HorizonCount  HorizonMode = "count"
	HorizonMonths HorizonMode = "months"
)

// Horizon bounds what a preview shows: the first Value instances, or the
// instances in the Value months from the rule start.
type Horizon struct {
	Mode  HorizonMode `json:"mode"`
	Value int         `json:"value"`
}

func (h Horizon) Validate() error {
	switch HorizonMode(strings.ToLower(string(h.Mode))) {
	case HorizonCount, HorizonMonths:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidHorizon, h.Mode)
	}
	if h.Value < 1 {
		return fmt.Errorf("%w: value must be positive, got %d", ErrInvalidHorizon, h.Value)
	}
	return nil
}

func (h Horizon) mode() HorizonMode {
	return HorizonMode(strings.ToLower(string(h.Mode)))
}

// Request is the "generate preview" input: a rule that has not been saved
// yet plus its exceptions.
type Request struct {
	Rule       recurrence.RawRule          `json:"rule"`
	Exceptions []recurrence.ExceptionEntry `json:"exceptions,omitempty"`
	Horizon    *Horizon                    `json:"horizon,omitempty"`
}

// Summary is the display-ready result. TotalCount is exact for finite
// rules; for open-ended rules it counts what the horizon admitted.
type Summary struct {
	Instances  []recurrence.Instance `json:"instances"`
	TotalCount int                   `json:"totalCount"`
	Shown      int                   `json:"shown"`
	Truncated  bool                  `json:"truncated"`
	Capped     bool                  `json:"capped"`
	Message    string                `json:"message,omitempty"`
}

type EventSource interface {
	Get(ctx context.Context, id uint) (*model.Event, error)
}

type ExceptionLoader interface {
	Load(ctx context.Context, eventID uint) (*recurrence.ExceptionSet, error)
}

// Overlayer substitutes materialized events into generated slots.
type Overlayer interface {
	Overlay(ctx context.Context, originEventID uint, instances []recurrence.Instance) ([]recurrence.Instance, error)
}

type Options struct {
	// Cap is the generator safety cap; recurrence.DefaultCap when zero.
	Cap      int
	Locale   language.Tag
	Location *time.Location
}

type Service struct {
	events     EventSource
	exceptions ExceptionLoader
	overlay    Overlayer
	opts       Options
}

func NewService(events EventSource, exceptions ExceptionLoader, overlay Overlayer, opts Options) *Service {
	return &Service{events: events, exceptions: exceptions, overlay: overlay, opts: opts}
}

// Preview validates req.Rule and expands it. A nil horizon is only valid
// for rules that terminate on their own.
func (s *Service) Preview(ctx context.Context, req Request) (Summary, error) {
	rule, err := recurrence.NewRule(req.Rule)
	if err != nil {
		return Summary{}, err
	}
	for _, e := range req.Exceptions {
		if err := e.Date.Validate(); err != nil {
			return Summary{}, fmt.Errorf("exception: %w", err)
		}
	}
	return s.expand(rule, recurrence.NewExceptionSet(req.Exceptions...), req.Horizon, 0)
}

// Occurrences expands a stored recurring event with its stored exceptions
// and overlays its materialized events.
func (s *Service) Occurrences(ctx context.Context, eventID uint, horizon *Horizon) (Summary, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Summary{}, err
	}
	rule, err := ev.Rule()
	if err != nil {
		return Summary{}, err
	}
	exceptions, err := s.exceptions.Load(ctx, ev.ID)
	if err != nil {
		return Summary{}, err
	}

	sum, err := s.expand(rule, exceptions, horizon, ev.ID)
	if err != nil {
		return Summary{}, err
	}
	if s.overlay != nil {
		sum.Instances, err = s.overlay.Overlay(ctx, ev.ID, sum.Instances)
		if err != nil {
			return Summary{}, err
		}
	}
	return sum, nil
}

func (s *Service) expand(rule recurrence.Rule, exceptions *recurrence.ExceptionSet, horizon *Horizon, originID uint) (Summary, error) {
	if horizon != nil {
		if err := horizon.Validate(); err != nil {
			return Summary{}, err
		}
	}

	opts := recurrence.Options{
		Cap:           s.opts.Cap,
		Locale:        s.opts.Locale,
		Location:      s.opts.Location,
		OriginEventID: originID,
	}

	if !rule.Finite() {
		if horizon == nil {
			return Summary{}, recurrence.ErrHorizonRequired
		}
		switch horizon.mode() {
		case HorizonCount:
			opts.Limit = horizon.Value
		case HorizonMonths:
			opts.Until = mo.Some(rule.Start().AddMonths(horizon.Value))
		}
		res, err := recurrence.Generate(rule, exceptions, opts)
		if err != nil {
			return Summary{}, err
		}
		metrics.RecordGenerate(rule.Pattern().String(), len(res.Instances), res.Capped)
		return summarize(res.Instances, len(res.Instances), res.Capped), nil
	}

	// Finite rules are expanded in full so the total is exact.
	res, err := recurrence.Generate(rule, exceptions, opts)
	if err != nil {
		return Summary{}, err
	}
	metrics.RecordGenerate(rule.Pattern().String(), len(res.Instances), res.Capped)

	shown := res.Instances
	if horizon != nil {
		shown = within(shown, rule, *horizon)
	}
	return summarize(shown, len(res.Instances), res.Capped), nil
}

func within(instances []recurrence.Instance, rule recurrence.Rule, h Horizon) []recurrence.Instance {
	switch h.mode() {
	case HorizonCount:
		return instances[:min(h.Value, len(instances))]
	case HorizonMonths:
		end := rule.Start().AddMonths(h.Value)
		if i := slices.IndexFunc(instances, func(in recurrence.Instance) bool {
			return !in.Date.Before(end)
		}); i >= 0 {
			return instances[:i]
		}
	}
	return instances
}

func summarize(shown []recurrence.Instance, total int, capped bool) Summary {
	sum := Summary{
		Instances:  shown,
		TotalCount: total,
		Shown:      len(shown),
		Capped:     capped,
		Truncated:  capped || len(shown) < total,
	}
	if sum.Truncated {
		more := ""
		if capped {
			more = "+"
		}
		sum.Message = fmt.Sprintf("showing first %d of %d%s", sum.Shown, total, more)
	}
	return sum
}
