package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studylog/internal/core"
	applog "studylog/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes. The response body never
// leaks driver internals; the full error goes to the log instead.
func writeError(w http.ResponseWriter, logger *applog.Logger, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrInvalidHours),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrUnknownCategory):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
		msg = "not found"
	case errors.Is(err, core.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		msg = "store unavailable"
	case errors.Is(err, core.ErrResetIncomplete):
		msg = "reset incomplete"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", applog.FieldError, err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// parseQueryDate parses an optional date query parameter. A missing parameter
// returns ok=false with no error.
func parseQueryDate(r *http.Request, name string) (date core.Date, ok bool, err error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.Date{}, false, nil
	}
	date, err = core.ParseDate(v)
	if err != nil {
		return core.Date{}, false, err
	}
	return date, true, nil
}
