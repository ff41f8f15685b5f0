package model

import (
	"fmt"
	"time"

	"venuecal/internal/calendar"
	"venuecal/internal/recurrence"
)

// Event is a persisted venue event. A recurring event carries its rule in
// the stored JSON layout; a materialized occurrence points back at its
// recurring parent through ParentEventID and VirtualOriginDate.
type Event struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Venue       string `json:"venue,omitempty"`

	// EventDate is the YYYY-MM-DD date the event takes place on.
	EventDate string `gorm:"index" json:"eventDate"`
	TimeStart string `json:"timeStart,omitempty"`
	TimeEnd   string `json:"timeEnd,omitempty"`

	IsRecurring   bool                `gorm:"default:false" json:"isRecurring"`
	RecurringRule *recurrence.RawRule `gorm:"serializer:json" json:"recurringRule,omitempty"`

	// A parent has at most one real event per slot; sqlite treats NULLs as
	// distinct so ordinary events never collide on this index.
	WasVirtual        bool    `gorm:"default:false" json:"wasVirtual"`
	ParentEventID     *uint   `gorm:"uniqueIndex:idx_events_slot,priority:1" json:"parentEventId,omitempty"`
	VirtualOriginDate *string `gorm:"uniqueIndex:idx_events_slot,priority:2" json:"virtualOriginDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Exception is one skipped date of a recurring event.
type Exception struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	EventID   uint      `gorm:"uniqueIndex:idx_exceptions_event_date,priority:1" json:"eventId"`
	Date      string    `gorm:"uniqueIndex:idx_exceptions_event_date,priority:2" json:"date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rule builds the validated recurrence rule of a recurring event.
func (e *Event) Rule() (recurrence.Rule, error) {
	if !e.IsRecurring || e.RecurringRule == nil {
		return recurrence.Rule{}, fmt.Errorf("event %d has no recurring rule", e.ID)
	}
	r, err := recurrence.NewRule(*e.RecurringRule)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("event %d rule: %w", e.ID, err)
	}
	return r, nil
}

// Date parses EventDate.
func (e *Event) Date() (calendar.Date, error) {
	return calendar.ParseDate(e.EventDate)
}

// Slot returns the occurrence date a materialized event replaces.
func (e *Event) Slot() (calendar.Date, bool) {
	if !e.WasVirtual || e.VirtualOriginDate == nil || e.ParentEventID == nil {
		return calendar.Date{}, false
	}
	d, err := calendar.ParseDate(*e.VirtualOriginDate)
	if err != nil {
		return calendar.Date{}, false
	}
	return d, true
}
