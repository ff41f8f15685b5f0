package web

import (
	"errors"
	"net/http"

	"venuecal/internal/calendar"
	appLog "venuecal/internal/log"
	"venuecal/internal/materialize"
	"venuecal/internal/preview"
	"venuecal/internal/recurrence"
	"venuecal/internal/store"
)

type errMapping struct {
	target error
	status int
	code   string
}

// Matched in order; the first errors.Is hit wins.
var errTable = []errMapping{
	{materialize.ErrSlotAlreadyReal, http.StatusConflict, "slot_already_real"},
	{store.ErrDuplicate, http.StatusConflict, "duplicate"},

	{materialize.ErrParentEventNotFound, http.StatusNotFound, "parent_not_found"},
	{materialize.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},

	{materialize.ErrNotRecurring, http.StatusUnprocessableEntity, "not_recurring"},
	{materialize.ErrNoSuchOccurrence, http.StatusUnprocessableEntity, "no_such_occurrence"},
	{materialize.ErrNotMaterialized, http.StatusUnprocessableEntity, "not_materialized"},
	{recurrence.ErrHorizonRequired, http.StatusUnprocessableEntity, "horizon_required"},
	{recurrence.ErrMissingStartDate, http.StatusUnprocessableEntity, "missing_start_date"},
	{recurrence.ErrEmptyCustomDates, http.StatusUnprocessableEntity, "empty_custom_dates"},
	{recurrence.ErrInvalidCustomDate, http.StatusUnprocessableEntity, "invalid_custom_date"},
	{recurrence.ErrInvalidWeekday, http.StatusUnprocessableEntity, "invalid_weekday"},
	{recurrence.ErrMissingEndDate, http.StatusUnprocessableEntity, "missing_end_date"},
	{recurrence.ErrUnknownPattern, http.StatusUnprocessableEntity, "unknown_pattern"},
	{recurrence.ErrUnknownEndType, http.StatusUnprocessableEntity, "unknown_end_type"},
	{preview.ErrInvalidHorizon, http.StatusUnprocessableEntity, "invalid_horizon"},
	{calendar.ErrInvalidDate, http.StatusUnprocessableEntity, "invalid_date"},
}

// writeDomainError maps err onto an HTTP status. Unknown errors are logged
// and reported as 500 without leaking their text.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errTable {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	appLog.Error("api request failed", err, "method", r.Method, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}
