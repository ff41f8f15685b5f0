package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "venuecal/internal/log"
	"venuecal/internal/metrics"
	"venuecal/internal/model"
)

const runTimeout = 2 * time.Minute

type RecurringLister interface {
	ListRecurring(ctx context.Context) ([]model.Event, error)
}

type OrphanFinder interface {
	Orphans(ctx context.Context, parent *model.Event) ([]model.Event, error)
}

// Orphan is a materialized event whose slot its parent no longer generates.
type Orphan struct {
	EventID       uint   `json:"eventId"`
	ParentEventID uint   `json:"parentEventId"`
	Slot          string `json:"occurrenceDate"`
	EventDate     string `json:"eventDate"`
	Title         string `json:"title"`
}

type Report struct {
	RanAt   time.Time `json:"ranAt"`
	Checked int       `json:"checked"`
	Skipped int       `json:"skipped"`
	Orphans []Orphan  `json:"orphans"`
}

// Sweeper periodically reports orphaned materialized events. It never
// deletes anything; resolving an orphan is an editorial decision.
type Sweeper struct {
	events RecurringLister
	finder OrphanFinder
	cron   *cron.Cron

	mu   sync.Mutex
	last Report
}

func New(events RecurringLister, finder OrphanFinder, loc *time.Location) *Sweeper {
	if loc == nil {
		loc = time.Local
	}
	return &Sweeper{
		events: events,
		finder: finder,
		cron:   cron.New(cron.WithLocation(loc)),
	}
}

// Schedule registers the sweep under a standard five-field cron spec or a
// descriptor such as "@hourly".
func (s *Sweeper) Schedule(spec string) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			appLog.Error("sweep: run failed", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return id, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce checks every recurring event. Events whose rule cannot be
// evaluated are logged and counted as skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	parents, err := s.events.ListRecurring(ctx)
	if err != nil {
		metrics.RecordSweep(0, err)
		return Report{}, fmt.Errorf("sweep: %w", err)
	}

	rep := Report{RanAt: time.Now(), Orphans: make([]Orphan, 0)}
	for i := range parents {
		if err := ctx.Err(); err != nil {
			metrics.RecordSweep(0, err)
			return Report{}, err
		}
		parent := &parents[i]
		orphans, err := s.finder.Orphans(ctx, parent)
		if err != nil {
			appLog.Warn("sweep: skipping event", "event_id", parent.ID, "err", err)
			rep.Skipped++
			continue
		}
		rep.Checked++
		for _, ev := range orphans {
			o := Orphan{EventID: ev.ID, ParentEventID: parent.ID, EventDate: ev.EventDate, Title: ev.Title}
			if ev.VirtualOriginDate != nil {
				o.Slot = *ev.VirtualOriginDate
			}
			rep.Orphans = append(rep.Orphans, o)
		}
	}

	metrics.RecordSweep(len(rep.Orphans), nil)
	if len(rep.Orphans) > 0 {
		appLog.Warn("sweep: orphaned events found", "count", len(rep.Orphans), "checked", rep.Checked)
	} else {
		appLog.Debug("sweep: no orphans", "checked", rep.Checked)
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	return rep, nil
}

// Last returns the most recent successful report.
func (s *Sweeper) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
