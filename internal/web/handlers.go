package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/mo"

	"venuecal/internal/calendar"
	"venuecal/internal/ics"
	appLog "venuecal/internal/log"
	"venuecal/internal/materialize"
	"venuecal/internal/model"
	"venuecal/internal/preview"
	"venuecal/internal/recurrence"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body. It writes
// the error response itself and reports whether the handler may proceed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, calendar.ErrInvalidDate) {
			writeDomainError(w, r, err)
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty, whatever
// the request's Content-Length says.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return true
	case errors.Is(err, calendar.ErrInvalidDate):
		writeDomainError(w, r, err)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return 0, false
	}
	return uint(n), true
}

func pathDate(w http.ResponseWriter, r *http.Request) (calendar.Date, bool) {
	d, err := calendar.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, r, err)
		return calendar.Date{}, false
	}
	return d, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// horizonFromQuery reads ?mode=&value=. Absent mode yields nil.
func horizonFromQuery(r *http.Request) *preview.Horizon {
	q := r.URL.Query()
	mode := strings.TrimSpace(q.Get("mode"))
	if mode == "" {
		return nil
	}
	return &preview.Horizon{Mode: preview.HorizonMode(mode), Value: parseIntDefault(q.Get("value"), 0)}
}

func optional[T any](p *T) mo.Option[T] {
	if p == nil {
		return mo.None[T]()
	}
	return mo.Some(*p)
}

// preview

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req preview.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	sum, err := s.deps.Preview.Preview(r.Context(), req)
	if errors.Is(err, recurrence.ErrHorizonRequired) && req.Horizon == nil {
		req.Horizon = s.defaultHorizon()
		sum, err = s.deps.Preview.Preview(r.Context(), req)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// materialize

type modificationsDTO struct {
	EventDate   *calendar.Date `json:"eventDate,omitempty"`
	TimeStart   *string        `json:"timeStart,omitempty"`
	TimeEnd     *string        `json:"timeEnd,omitempty"`
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Location    *string        `json:"location,omitempty"`
}

type materializeRequest struct {
	OriginEventID  uint             `json:"originEventId"`
	OccurrenceDate calendar.Date    `json:"occurrenceDate"`
	Modifications  modificationsDTO `json:"modifications"`
}

type materializeResponse struct {
	NewEventID uint `json:"newEventId"`
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OriginEventID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "originEventId is required")
		return
	}
	if req.OccurrenceDate.IsZero() {
		writeError(w, http.StatusBadRequest, "bad_request", "occurrenceDate is required")
		return
	}
	if d := req.Modifications.EventDate; d != nil && d.IsZero() {
		writeError(w, http.StatusUnprocessableEntity, "invalid_date", "modifications.eventDate must be a date when present")
		return
	}

	m := req.Modifications
	id, err := s.deps.Materialize.ConvertToReal(r.Context(), materialize.ConvertRequest{
		OriginEventID:  req.OriginEventID,
		OccurrenceDate: req.OccurrenceDate,
		Modifications: materialize.Modifications{
			EventDate:   optional(m.EventDate),
			TimeStart:   optional(m.TimeStart),
			TimeEnd:     optional(m.TimeEnd),
			Title:       optional(m.Title),
			Description: optional(m.Description),
			Location:    optional(m.Location),
		},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, materializeResponse{NewEventID: id})
}

type restoreRequest struct {
	RealEventID uint `json:"realEventId"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RealEventID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "realEventId is required")
		return
	}
	if err := s.deps.Materialize.RestoreToVirtual(r.Context(), req.RealEventID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleOrphans serves the latest sweep report. ?refresh runs a sweep
// first, as does the first request before any scheduled run.
func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orphans == nil {
		writeError(w, http.StatusNotImplemented, "sweep_disabled", "orphan sweep is not configured")
		return
	}
	rep := s.deps.Orphans.Last()
	if rep.RanAt.IsZero() || r.URL.Query().Has("refresh") {
		var err error
		if rep, err = s.deps.Orphans.RunOnce(r.Context()); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

// events

type createEventRequest struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Location      string              `json:"location"`
	Venue         string              `json:"venue"`
	EventDate     string              `json:"eventDate"`
	TimeStart     string              `json:"timeStart"`
	TimeEnd       string              `json:"timeEnd"`
	RecurringRule *recurrence.RawRule `json:"recurringRule"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}

	ev := &model.Event{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Venue:       req.Venue,
		EventDate:   req.EventDate,
		TimeStart:   req.TimeStart,
		TimeEnd:     req.TimeEnd,
	}

	if req.RecurringRule != nil {
		rule, err := recurrence.NewRule(*req.RecurringRule)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		raw := rule.Raw()
		ev.IsRecurring = true
		ev.RecurringRule = &raw
		if ev.EventDate == "" {
			ev.EventDate = rule.Start().String()
		}
		if ev.TimeStart == "" {
			ev.TimeStart = rule.TimeStart()
		}
		if ev.TimeEnd == "" {
			ev.TimeEnd = rule.TimeEnd()
		}
	}
	if _, err := ev.Date(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.deps.Events.Create(r.Context(), ev); err != nil {
		writeDomainError(w, r, err)
		return
	}
	appLog.Info("event created", "event_id", ev.ID, "recurring", ev.IsRecurring, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.deps.Events.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// recurringEvent loads id and rejects events without a rule.
func (s *Server) recurringEvent(w http.ResponseWriter, r *http.Request, id uint) (*model.Event, bool) {
	ev, err := s.deps.Events.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if !ev.IsRecurring {
		writeDomainError(w, r, materialize.ErrNotRecurring)
		return nil, false
	}
	return ev, true
}

func (s *Server) occurrences(r *http.Request, id uint) (preview.Summary, error) {
	h := horizonFromQuery(r)
	sum, err := s.deps.Preview.Occurrences(r.Context(), id, h)
	if errors.Is(err, recurrence.ErrHorizonRequired) && h == nil {
		sum, err = s.deps.Preview.Occurrences(r.Context(), id, s.defaultHorizon())
	}
	return sum, err
}

func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.recurringEvent(w, r, id); !ok {
		return
	}
	sum, err := s.occurrences(r, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleFeed serves the event as an iCalendar feed. A one-off event yields
// a single VEVENT; a recurring one yields its overlaid occurrences.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.deps.Events.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var instances []recurrence.Instance
	if ev.IsRecurring {
		sum, err := s.occurrences(r, id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		instances = sum.Instances
	} else {
		d, err := ev.Date()
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		instances = []recurrence.Instance{{
			Date:           d,
			OccurrenceDate: d,
			TimeStart:      ev.TimeStart,
			TimeEnd:        ev.TimeEnd,
		}}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="event-`+strconv.FormatUint(uint64(id), 10)+`.ics"`)
	if err := ics.WriteFeed(w, ev, instances, ics.FeedConfig{Location: s.loc}); err != nil {
		appLog.Error("feed write failed", err, "event_id", id)
	}
}

// exceptions

type exceptionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Events.Get(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.deps.Exceptions.List(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Exception{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePutException(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	date, ok := pathDate(w, r)
	if !ok {
		return
	}
	var req exceptionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if _, ok := s.recurringEvent(w, r, id); !ok {
		return
	}
	if err := s.deps.Exceptions.Upsert(r.Context(), id, date, req.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Exception{EventID: id, Date: date.String(), Reason: req.Reason})
}

func (s *Server) handleDeleteException(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	date, ok := pathDate(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Events.Get(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.deps.Exceptions.Delete(r.Context(), id, date); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
