package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"studylog/internal/core"
	applog "studylog/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.GetStats(r.Context()); err != nil {
		writeError(w, applog.FromContext(r.Context()), err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	date, hasDate, err := parseQueryDate(r, "date")
	if err != nil {
		writeError(w, logger, err)
		return
	}
	from, hasFrom, err := parseQueryDate(r, "from")
	if err != nil {
		writeError(w, logger, err)
		return
	}
	to, hasTo, err := parseQueryDate(r, "to")
	if err != nil {
		writeError(w, logger, err)
		return
	}

	key := listCacheKey(r)
	if cached, found := s.entriesCache.Get(key); found {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	entries := []core.StudyEntry{}
	if hasDate {
		entry, err := s.svc.EntryForDate(r.Context(), date)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	} else {
		all, err := s.svc.Entries(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		for _, e := range all {
			if hasFrom && e.Date.Before(from.Time) {
				continue
			}
			if hasTo && e.Date.After(to.Time) {
				continue
			}
			entries = append(entries, e)
		}
	}

	s.entriesCache.Set(key, entries)
	writeJSON(w, http.StatusOK, entries)
}

func listCacheKey(r *http.Request) string {
	q := r.URL.Query()
	return strings.Join([]string{q.Get("date"), q.Get("from"), q.Get("to")}, "|")
}

type recordRequest struct {
	Date     core.Date     `json:"date"`
	Category core.Category `json:"category"`
	Hours    float64       `json:"hours"`
}

func (s *Server) handleRecordHours(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("rejecting malformed body", applog.FieldError, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id, err := s.svc.RecordHours(r.Context(), req.Date, req.Category, req.Hours)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	s.entriesCache.Purge()

	entry, err := s.svc.EntryForDate(r.Context(), req.Date)
	if err != nil || entry == nil {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteHour(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be a non-negative integer"})
		return
	}

	if err := s.svc.DeleteHour(r.Context(), id, index); err != nil {
		writeError(w, logger, err)
		return
	}
	s.entriesCache.Purge()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.GetStats(r.Context())
	if err != nil {
		writeError(w, applog.FromContext(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context()); err != nil {
		writeError(w, applog.FromContext(r.Context()), err)
		return
	}
	s.entriesCache.Purge()
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams entry and totals updates over Server-Sent Events. Each
// update carries the full current state, never a delta, so a client can drop
// intermediate events without losing consistency.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	var filter *core.Date
	if date, hasDate, err := parseQueryDate(r, "date"); err != nil {
		writeError(w, logger, err)
		return
	} else if hasDate {
		filter = &date
	}

	entriesSub := s.svc.SubscribeEntries(r.Context(), filter)
	defer entriesSub.Unsubscribe()
	totalsSub := s.svc.SubscribeTotals(r.Context())
	defer totalsSub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, open := <-entriesSub.Updates():
			if !open {
				return
			}
			if u.Err != nil {
				writeEvent(w, flusher, "error", map[string]string{"error": "entries unavailable"})
				continue
			}
			entries := u.Entries
			if entries == nil {
				entries = []core.StudyEntry{}
			}
			writeEvent(w, flusher, "entries", entries)
		case u, open := <-totalsSub.Updates():
			if !open {
				return
			}
			if u.Err != nil {
				writeEvent(w, flusher, "error", map[string]string{"error": "totals unavailable"})
				continue
			}
			totals := u.Totals
			if !u.Present {
				// Absent cache (fresh store or just reset): recompute so
				// the client still gets explicit zeros per category.
				recomputed, err := s.svc.GetStats(r.Context())
				if err != nil {
					writeEvent(w, flusher, "error", map[string]string{"error": "totals unavailable"})
					continue
				}
				totals = recomputed
			}
			writeEvent(w, flusher, "totals", totals)
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
