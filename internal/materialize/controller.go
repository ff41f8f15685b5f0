package materialize

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"
	"golang.org/x/text/language"

	"venuecal/internal/calendar"
	appLog "venuecal/internal/log"
	"venuecal/internal/metrics"
	"venuecal/internal/model"
	"venuecal/internal/recurrence"
	"venuecal/internal/store"
)

var (
	ErrSlotAlreadyReal     = errors.New("materialize: occurrence already converted to a real event")
	ErrParentEventNotFound = errors.New("materialize: parent event not found")
	ErrNotRecurring        = errors.New("materialize: parent event is not recurring")
	ErrNoSuchOccurrence    = errors.New("materialize: date is not an occurrence of the rule")
	ErrEventNotFound       = errors.New("materialize: event not found")
	ErrNotMaterialized     = errors.New("materialize: event was not converted from an occurrence")
)

// EventStore is the persistence the controller needs; store.EventRepository
// satisfies it.
type EventStore interface {
	Get(ctx context.Context, id uint) (*model.Event, error)
	Create(ctx context.Context, event *model.Event) error
	Delete(ctx context.Context, id uint) error
	FindMaterialized(ctx context.Context, parentID uint) ([]model.Event, error)
	FindSlot(ctx context.Context, parentID uint, date string) (*model.Event, error)
}

// ExceptionLoader yields the exception set of a recurring event.
type ExceptionLoader interface {
	Load(ctx context.Context, eventID uint) (*recurrence.ExceptionSet, error)
}

// Modifications override fields of the event created from a slot. Absent
// fields are copied from the parent.
type Modifications struct {
	EventDate   mo.Option[calendar.Date]
	TimeStart   mo.Option[string]
	TimeEnd     mo.Option[string]
	Title       mo.Option[string]
	Description mo.Option[string]
	Location    mo.Option[string]
}

type ConvertRequest struct {
	OriginEventID  uint
	OccurrenceDate calendar.Date
	Modifications  Modifications
}

// Options decorate projected instances.
type Options struct {
	Locale   language.Tag
	Location *time.Location
}

// Controller converts virtual occurrences into real events and back.
type Controller struct {
	events     EventStore
	exceptions ExceptionLoader
	opts       Options
}

func NewController(events EventStore, exceptions ExceptionLoader, opts Options) *Controller {
	return &Controller{events: events, exceptions: exceptions, opts: opts}
}

// ConvertToReal creates a standalone event for the slot of originEventID
// on OccurrenceDate and returns its ID. The parent's rule is untouched;
// the new event replaces the slot through Overlay.
func (c *Controller) ConvertToReal(ctx context.Context, req ConvertRequest) (uint, error) {
	id, err := c.convert(ctx, req)
	switch {
	case err == nil:
		metrics.IncMaterialize("convert", "success")
	case errors.Is(err, ErrSlotAlreadyReal):
		metrics.IncMaterialize("convert", "conflict")
	default:
		metrics.IncMaterialize("convert", "error")
	}
	return id, err
}

func (c *Controller) convert(ctx context.Context, req ConvertRequest) (uint, error) {
	parent, err := c.events.Get(ctx, req.OriginEventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("event %d: %w", req.OriginEventID, ErrParentEventNotFound)
		}
		return 0, err
	}
	if !parent.IsRecurring || parent.RecurringRule == nil {
		return 0, fmt.Errorf("event %d: %w", parent.ID, ErrNotRecurring)
	}
	if err := req.OccurrenceDate.Validate(); err != nil {
		return 0, err
	}
	if moved, ok := req.Modifications.EventDate.Get(); ok {
		if err := moved.Validate(); err != nil {
			return 0, fmt.Errorf("modified event date: %w", err)
		}
	}

	rule, err := parent.Rule()
	if err != nil {
		return 0, err
	}
	exceptions, err := c.exceptions.Load(ctx, parent.ID)
	if err != nil {
		return 0, err
	}
	ok, err := recurrence.Occurs(rule, exceptions, req.OccurrenceDate)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s of event %d: %w", req.OccurrenceDate, parent.ID, ErrNoSuchOccurrence)
	}

	slot := req.OccurrenceDate.String()
	if existing, err := c.events.FindSlot(ctx, parent.ID, slot); err == nil {
		return 0, fmt.Errorf("%s of event %d is event %d: %w", slot, parent.ID, existing.ID, ErrSlotAlreadyReal)
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	ev := newRealEvent(parent, req.OccurrenceDate, req.Modifications)
	if err := c.events.Create(ctx, ev); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return 0, fmt.Errorf("%s of event %d: %w", slot, parent.ID, ErrSlotAlreadyReal)
		}
		return 0, err
	}

	appLog.Info("materialize: converted occurrence",
		"parent_event_id", parent.ID,
		"occurrence_date", slot,
		"event_id", ev.ID,
	)
	return ev.ID, nil
}

func newRealEvent(parent *model.Event, slot calendar.Date, mods Modifications) *model.Event {
	parentID := parent.ID
	origin := slot.String()
	return &model.Event{
		Title:             mods.Title.OrElse(parent.Title),
		Description:       mods.Description.OrElse(parent.Description),
		Location:          mods.Location.OrElse(parent.Location),
		Venue:             parent.Venue,
		EventDate:         mods.EventDate.OrElse(slot).String(),
		TimeStart:         mods.TimeStart.OrElse(parent.TimeStart),
		TimeEnd:           mods.TimeEnd.OrElse(parent.TimeEnd),
		WasVirtual:        true,
		VirtualOriginDate: &origin,
		ParentEventID:     &parentID,
	}
}

// RestoreToVirtual deletes a converted event so its slot is generated
// virtually again.
func (c *Controller) RestoreToVirtual(ctx context.Context, realEventID uint) error {
	err := c.restore(ctx, realEventID)
	if err != nil {
		metrics.IncMaterialize("restore", "error")
		return err
	}
	metrics.IncMaterialize("restore", "success")
	return nil
}

func (c *Controller) restore(ctx context.Context, realEventID uint) error {
	ev, err := c.events.Get(ctx, realEventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("event %d: %w", realEventID, ErrEventNotFound)
		}
		return err
	}
	if _, ok := ev.Slot(); !ok {
		return fmt.Errorf("event %d: %w", realEventID, ErrNotMaterialized)
	}
	if err := c.events.Delete(ctx, realEventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("event %d: %w", realEventID, ErrEventNotFound)
		}
		return err
	}

	appLog.Info("materialize: restored occurrence",
		"parent_event_id", *ev.ParentEventID,
		"occurrence_date", *ev.VirtualOriginDate,
		"event_id", realEventID,
	)
	return nil
}

// Overlay replaces the generated slots of originEventID that are backed by
// a real event with that event's projection. Real events whose slot is not
// among instances are left out. The result is ordered by effective date,
// then slot date.
func (c *Controller) Overlay(ctx context.Context, originEventID uint, instances []recurrence.Instance) ([]recurrence.Instance, error) {
	materialized, err := c.events.FindMaterialized(ctx, originEventID)
	if err != nil {
		return nil, err
	}
	if len(materialized) == 0 {
		return instances, nil
	}

	bySlot := make(map[calendar.Date]*model.Event, len(materialized))
	for i := range materialized {
		if slot, ok := materialized[i].Slot(); ok {
			bySlot[slot] = &materialized[i]
		}
	}

	out := make([]recurrence.Instance, 0, len(instances))
	for _, in := range instances {
		ev, ok := bySlot[in.OccurrenceDate]
		if !ok {
			out = append(out, in)
			continue
		}
		projected, err := c.project(in, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}

	slices.SortStableFunc(out, func(a, b recurrence.Instance) int {
		return cmp.Or(a.Date.Compare(b.Date), a.OccurrenceDate.Compare(b.OccurrenceDate))
	})
	return out, nil
}

func (c *Controller) project(in recurrence.Instance, ev *model.Event) (recurrence.Instance, error) {
	date, err := ev.Date()
	if err != nil {
		return recurrence.Instance{}, fmt.Errorf("event %d date: %w", ev.ID, err)
	}
	in.Date = date
	in.TimeStart = ev.TimeStart
	in.TimeEnd = ev.TimeEnd
	in.FormattedDate = calendar.FormatLocal(date, c.opts.Locale, c.opts.Location)
	in.IsVirtual = false
	in.RealEventID = ev.ID
	return in, nil
}

// Orphans lists the real events of parent whose slot the rule no longer
// generates, for example after an exception was added for the slot.
func (c *Controller) Orphans(ctx context.Context, parent *model.Event) ([]model.Event, error) {
	rule, err := parent.Rule()
	if err != nil {
		return nil, err
	}
	exceptions, err := c.exceptions.Load(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	materialized, err := c.events.FindMaterialized(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	var orphans []model.Event
	for _, ev := range materialized {
		slot, ok := ev.Slot()
		if !ok {
			orphans = append(orphans, ev)
			continue
		}
		occurs, err := recurrence.Occurs(rule, exceptions, slot)
		if err != nil {
			return nil, err
		}
		if !occurs {
			orphans = append(orphans, ev)
		}
	}
	return orphans, nil
}
