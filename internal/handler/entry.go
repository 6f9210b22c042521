package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/icsfeed"
	"github.com/dukerupert/cinesync/internal/model"
)

// EntrySource is the read side of a calendar store.
type EntrySource interface {
	Query(ctx context.Context, start, end time.Time, descriptionContains string) ([]model.CalendarEntry, error)
}

// Feed window relative to now.
const (
	feedLookBack  = 90 * 24 * time.Hour
	feedLookAhead = 365 * 24 * time.Hour
)

type EntryHandler struct {
	entries EntrySource
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewEntryHandler(entries EntrySource, loc *time.Location, logger *slog.Logger) *EntryHandler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryHandler{entries: entries, loc: loc, logger: logger, now: time.Now}
}

// List handles GET /api/entries?start=&end=. Only entries carrying the
// booking tag are returned.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return
	}

	start, err := parseFlexibleTime(startStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return
	}
	end, err := parseFlexibleTime(endStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	entries, err := h.entries.Query(r.Context(), start, end, booking.ProvenanceTag)
	if err != nil {
		h.logger.Error("list entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []model.CalendarEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Feed handles GET /calendar.ics.
func (h *EntryHandler) Feed(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	entries, err := h.entries.Query(r.Context(), now.Add(-feedLookBack), now.Add(feedLookAhead), booking.ProvenanceTag)
	if err != nil {
		h.logger.Error("build feed", "error", err)
		http.Error(w, "failed to build feed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="cinesync.ics"`)
	if err := icsfeed.Write(w, "Cinema bookings", entries, now); err != nil {
		h.logger.Error("write feed", "error", err)
	}
}
