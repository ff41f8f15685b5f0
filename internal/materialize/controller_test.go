package materialize

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuecal/internal/calendar"
	appLog "venuecal/internal/log"
	"venuecal/internal/model"
	"venuecal/internal/recurrence"
	"venuecal/internal/store"
)

func TestMain(m *testing.M) {
	appLog.Init(io.Discard)
	os.Exit(m.Run())
}

type fixture struct {
	ctx        context.Context
	events     *store.EventRepository
	exceptions *store.ExceptionRepository
	ctrl       *Controller
	parent     *model.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "venuecal.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		ctx:        context.Background(),
		events:     store.NewEventRepository(db),
		exceptions: store.NewExceptionRepository(db),
	}
	f.ctrl = NewController(f.events, f.exceptions, Options{})

	f.parent = &model.Event{
		Title:       "Tuesday quiz",
		Description: "Pub quiz in the foyer",
		Location:    "Foyer",
		Venue:       "Main hall",
		EventDate:   "2025-01-07",
		TimeStart:   "19:00",
		TimeEnd:     "21:00",
		IsRecurring: true,
		RecurringRule: &recurrence.RawRule{
			Pattern:   recurrence.PatternWeekly,
			Interval:  1,
			Weekdays:  []int{2},
			StartDate: "2025-01-07",
			EndType:   recurrence.EndTypeCount,
			EndCount:  3,
			TimeStart: "19:00",
			TimeEnd:   "21:00",
		},
	}
	require.NoError(t, f.events.Create(f.ctx, f.parent))
	return f
}

func (f *fixture) generate(t *testing.T) []recurrence.Instance {
	t.Helper()
	rule, err := f.parent.Rule()
	require.NoError(t, err)
	ex, err := f.exceptions.Load(f.ctx, f.parent.ID)
	require.NoError(t, err)
	res, err := recurrence.Generate(rule, ex, recurrence.Options{OriginEventID: f.parent.ID})
	require.NoError(t, err)
	return res.Instances
}

func d(s string) calendar.Date {
	date, err := calendar.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return date
}

func TestConvertToReal_MoveOccurrence(t *testing.T) {
	f := newFixture(t)

	id, err := f.ctrl.ConvertToReal(f.ctx, ConvertRequest{
		OriginEventID:  f.parent.ID,
		OccurrenceDate: d("2025-01-14"),
		Modifications:  Modifications{EventDate: mo.Some(d("2025-01-15"))},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	ev, err := f.events.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", ev.EventDate)
	assert.True(t, ev.WasVirtual)
	assert.False(t, ev.IsRecurring)
	assert.Nil(t, ev.RecurringRule)
	require.NotNil(t, ev.ParentEventID)
	assert.Equal(t, f.parent.ID, *ev.ParentEventID)
	require.NotNil(t, ev.VirtualOriginDate)
	assert.Equal(t, "2025-01-14", *ev.VirtualOriginDate)
	assert.Equal(t, "Tuesday quiz", ev.Title)
	assert.Equal(t, "Foyer", ev.Location)
	assert.Equal(t, "19:00", ev.TimeStart)

	got, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, d("2025-01-07"), got[0].Date)
	assert.True(t, got[0].IsVirtual)

	assert.Equal(t, d("2025-01-15"), got[1].Date)
	assert.Equal(t, d("2025-01-14"), got[1].OccurrenceDate)
	assert.False(t, got[1].IsVirtual)
	assert.Equal(t, id, got[1].RealEventID)
	assert.Equal(t, f.parent.ID, got[1].OriginEventID)
	assert.Equal(t, "Wednesday, January 15, 2025", got[1].FormattedDate)

	assert.Equal(t, d("2025-01-21"), got[2].Date)
	assert.True(t, got[2].IsVirtual)
}

func TestConvertThenRestore_RoundTrip(t *testing.T) {
	f := newFixture(t)
	before, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)

	id, err := f.ctrl.ConvertToReal(f.ctx, ConvertRequest{
		OriginEventID:  f.parent.ID,
		OccurrenceDate: d("2025-01-21"),
		Modifications: Modifications{
			Title:     mo.Some("Quiz finals"),
			TimeStart: mo.Some("18:30"),
		},
	})
	require.NoError(t, err)

	during, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)
	assert.Equal(t, "18:30", during[2].TimeStart)
	assert.Equal(t, "21:00", during[2].TimeEnd)
	assert.False(t, during[2].IsVirtual)

	require.NoError(t, f.ctrl.RestoreToVirtual(f.ctx, id))

	after, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.events.Get(f.ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConvertToReal_SlotAlreadyReal(t *testing.T) {
	f := newFixture(t)
	req := ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-01-07")}

	_, err := f.ctrl.ConvertToReal(f.ctx, req)
	require.NoError(t, err)

	_, err = f.ctrl.ConvertToReal(f.ctx, req)
	assert.ErrorIs(t, err, ErrSlotAlreadyReal)
}

func TestConvertToReal_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	req := ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-01-14")}

	const workers = 4
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ctrl.ConvertToReal(f.ctx, req)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	materialized, err := f.events.FindMaterialized(f.ctx, f.parent.ID)
	require.NoError(t, err)
	assert.Len(t, materialized, 1)
}

func TestConvertToReal_Errors(t *testing.T) {
	f := newFixture(t)
	plain := &model.Event{Title: "One-off gig", EventDate: "2025-02-01"}
	require.NoError(t, f.events.Create(f.ctx, plain))
	require.NoError(t, f.exceptions.Upsert(f.ctx, f.parent.ID, d("2025-01-14"), "closed"))

	tests := []struct {
		name    string
		req     ConvertRequest
		wantErr error
	}{
		{"missing parent", ConvertRequest{OriginEventID: 999, OccurrenceDate: d("2025-01-07")}, ErrParentEventNotFound},
		{"not recurring", ConvertRequest{OriginEventID: plain.ID, OccurrenceDate: d("2025-02-01")}, ErrNotRecurring},
		{"wrong weekday", ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-01-08")}, ErrNoSuchOccurrence},
		{"past count", ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-02-04")}, ErrNoSuchOccurrence},
		{"excepted", ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-01-14")}, ErrNoSuchOccurrence},
		{"invalid date", ConvertRequest{OriginEventID: f.parent.ID}, calendar.ErrInvalidDate},
		{"zero moved date", ConvertRequest{
			OriginEventID:  f.parent.ID,
			OccurrenceDate: d("2025-01-07"),
			Modifications:  Modifications{EventDate: mo.Some(calendar.Date{})},
		}, calendar.ErrInvalidDate},
		{"impossible moved date", ConvertRequest{
			OriginEventID:  f.parent.ID,
			OccurrenceDate: d("2025-01-07"),
			Modifications:  Modifications{EventDate: mo.Some(calendar.Date{Year: 2025, Month: 2, Day: 30})},
		}, calendar.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctrl.ConvertToReal(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConvertToReal_RejectedMoveLeavesSeriesIntact(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.ConvertToReal(f.ctx, ConvertRequest{
		OriginEventID:  f.parent.ID,
		OccurrenceDate: d("2025-01-14"),
		Modifications:  Modifications{EventDate: mo.Some(calendar.Date{})},
	})
	require.ErrorIs(t, err, calendar.ErrInvalidDate)

	materialized, err := f.events.FindMaterialized(f.ctx, f.parent.ID)
	require.NoError(t, err)
	assert.Empty(t, materialized)

	in := []recurrence.Instance{{Date: d("2025-01-14"), OccurrenceDate: d("2025-01-14"), IsVirtual: true}}
	out, err := f.ctrl.Overlay(f.ctx, f.parent.ID, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRestoreToVirtual_Errors(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.ctrl.RestoreToVirtual(f.ctx, 999), ErrEventNotFound)
	assert.ErrorIs(t, f.ctrl.RestoreToVirtual(f.ctx, f.parent.ID), ErrNotMaterialized)
}

func TestOverlay_WithoutMaterializedEventsIsIdentity(t *testing.T) {
	f := newFixture(t)
	in := f.generate(t)

	out, err := f.ctrl.Overlay(f.ctx, f.parent.ID, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestOverlay_MovedPastLaterSlotIsResorted(t *testing.T) {
	f := newFixture(t)
	id, err := f.ctrl.ConvertToReal(f.ctx, ConvertRequest{
		OriginEventID:  f.parent.ID,
		OccurrenceDate: d("2025-01-07"),
		Modifications:  Modifications{EventDate: mo.Some(d("2025-01-23"))},
	})
	require.NoError(t, err)

	out, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []calendar.Date{d("2025-01-14"), d("2025-01-21"), d("2025-01-23")},
		[]calendar.Date{out[0].Date, out[1].Date, out[2].Date})
	assert.Equal(t, id, out[2].RealEventID)
}

func TestOrphans(t *testing.T) {
	f := newFixture(t)
	id, err := f.ctrl.ConvertToReal(f.ctx, ConvertRequest{OriginEventID: f.parent.ID, OccurrenceDate: d("2025-01-14")})
	require.NoError(t, err)

	orphans, err := f.ctrl.Orphans(f.ctx, f.parent)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, f.exceptions.Upsert(f.ctx, f.parent.ID, d("2025-01-14"), "closed"))

	orphans, err = f.ctrl.Orphans(f.ctx, f.parent)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, id, orphans[0].ID)

	// An orphaned slot is absent from generation, so the overlay omits it.
	out, err := f.ctrl.Overlay(f.ctx, f.parent.ID, f.generate(t))
	require.NoError(t, err)
	for _, in := range out {
		assert.NotEqual(t, id, in.RealEventID)
	}
}
