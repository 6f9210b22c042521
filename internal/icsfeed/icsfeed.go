// Package icsfeed renders calendar entries as an iCalendar feed.
package icsfeed

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/cinesync/internal/model"
)

const productID = "-//cinesync//Cinema bookings//EN"

// UIDDomain is appended to entry IDs to form event UIDs.
const UIDDomain = "cinesync"

// Build returns a PUBLISH calendar holding one VEVENT per entry.
func Build(name string, entries []model.CalendarEntry, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
	}

	for _, e := range entries {
		ev := cal.AddEvent(e.ID + "@" + UIDDomain)
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(e.Start)
		ev.SetEndAt(e.End)
		ev.SetSummary(e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if !e.CreatedAt.IsZero() {
			ev.SetCreatedTime(e.CreatedAt)
		}
		if !e.UpdatedAt.IsZero() {
			ev.SetModifiedAt(e.UpdatedAt)
		}
	}
	return cal
}

// Write serializes entries to w.
func Write(w io.Writer, name string, entries []model.CalendarEntry, now time.Time) error {
	return Build(name, entries, now).SerializeTo(w)
}
