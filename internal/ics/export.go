package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"venuecal/internal/calendar"
	appLog "venuecal/internal/log"
	"venuecal/internal/model"
	"venuecal/internal/recurrence"
)

// uidNamespace scopes the name-based UUIDs of exported occurrences.
var uidNamespace = uuid.MustParse("6f1c7a52-4bde-4d0b-9a43-1d4a3f0c2e9b")

const (
	uidDomain = "venuecal"
	clockFmt  = "15:04"

	propOccurrence = ical.ComponentProperty("X-VENUECAL-OCCURRENCE")
)

// FeedConfig controls how instances are rendered into VEVENTs.
type FeedConfig struct {
	// Location is the venue timezone; instances with times are anchored
	// there. If nil, time.Local is used.
	Location *time.Location

	// Now stamps DTSTAMP. If nil, time.Now is used.
	Now func() time.Time
}

// EventUID is the stable UID of an event's occurrence slot. It does not
// change when the slot is materialized or moved, so subscribed clients
// update the entry in place.
func EventUID(originEventID uint, slot calendar.Date) string {
	name := fmt.Sprintf("%d/%s", originEventID, slot)
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@" + uidDomain
}

// SeriesUID identifies the recurring event itself.
func SeriesUID(originEventID uint) string {
	return uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("%d", originEventID))).String() + "@" + uidDomain
}

// BuildFeed renders the instances of ev as a PUBLISH calendar. Instances
// with a parsable start time become timed events; others are all-day.
func BuildFeed(ev *model.Event, instances []recurrence.Instance, cfg FeedConfig) *ical.Calendar {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	stamp := cfg.Now()

	cal := ical.NewCalendarFor(uidDomain)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(ev.Title)
	cal.SetXWRTimezone(cfg.Location.String())
	if ev.Description != "" {
		cal.SetXWRCalDesc(ev.Description)
	}

	location := joinNonEmpty(", ", ev.Location, ev.Venue)

	for _, in := range instances {
		ve := cal.AddEvent(EventUID(ev.ID, in.OccurrenceDate))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if location != "" {
			ve.SetLocation(location)
		}
		ve.SetStatus(ical.ObjectStatusConfirmed)
		ve.AddProperty(ical.ComponentPropertyRelatedTo, SeriesUID(ev.ID))
		ve.AddProperty(propOccurrence, in.OccurrenceDate.String())

		start, end, timed := span(in, cfg.Location)
		if timed {
			ve.SetStartAt(start)
			ve.SetEndAt(end)
		} else {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(end)
		}
	}

	appLog.Debug("ics feed built", "event_id", ev.ID, "instances", len(instances))
	return cal
}

// WriteFeed serializes BuildFeed's calendar to w.
func WriteFeed(w io.Writer, ev *model.Event, instances []recurrence.Instance, cfg FeedConfig) error {
	if err := BuildFeed(ev, instances, cfg).SerializeTo(w); err != nil {
		return fmt.Errorf("serialize feed: %w", err)
	}
	return nil
}

// span returns the start and end of in. Timed events without an end last
// one hour; an end at or before the start rolls over to the next day.
func span(in recurrence.Instance, loc *time.Location) (time.Time, time.Time, bool) {
	day := in.Date.Time(loc)

	startClock, ok := parseClock(in.TimeStart)
	if !ok {
		return day, in.Date.AddDays(1).Time(loc), false
	}
	start := atClock(in.Date, startClock, loc)

	endClock, ok := parseClock(in.TimeEnd)
	if !ok {
		return start, start.Add(time.Hour), true
	}
	end := atClock(in.Date, endClock, loc)
	if !end.After(start) {
		end = atClock(in.Date.AddDays(1), endClock, loc)
	}
	return start, end, true
}

func parseClock(s string) (time.Time, bool) {
	t, err := time.Parse(clockFmt, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func atClock(d calendar.Date, clock time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, clock.Hour(), clock.Minute(), 0, 0, loc)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
