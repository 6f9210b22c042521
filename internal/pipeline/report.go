package pipeline

import (
	"time"

	"github.com/dukerupert/cinesync/internal/model"
	"github.com/dukerupert/cinesync/internal/reconcile"
)

type VendorReport struct {
	Vendor        string `json:"vendor"`
	Threads       int    `json:"threads"`
	Messages      int    `json:"messages"`
	Bookings      int    `json:"bookings"`
	Skipped       int    `json:"skipped"`
	Defects       int    `json:"defects"`
	Cancellations int    `json:"cancellations"`
}

type BookingResult struct {
	Chain   string            `json:"chain"`
	Title   string            `json:"title"`
	Start   time.Time         `json:"start"`
	Outcome reconcile.Outcome `json:"outcome"`
	EntryID string            `json:"entry_id,omitempty"`
}

// Report summarizes one pass.
type Report struct {
	Vendors  []*VendorReport           `json:"vendors"`
	Results  []BookingResult           `json:"results"`
	Outcomes map[reconcile.Outcome]int `json:"outcomes"`
}

func newReport() *Report {
	return &Report{Outcomes: make(map[reconcile.Outcome]int)}
}

func (r *Report) vendor(name string) *VendorReport {
	vr := &VendorReport{Vendor: name}
	r.Vendors = append(r.Vendors, vr)
	return vr
}

func (r *Report) record(mb model.MatchedBooking, res reconcile.Result) {
	r.Outcomes[res.Outcome]++
	r.Results = append(r.Results, BookingResult{
		Chain:   mb.Chain,
		Title:   mb.Booking.Title,
		Start:   mb.Booking.Start,
		Outcome: res.Outcome,
		EntryID: res.EntryID,
	})
}

// Totals sums the per-vendor counters.
func (r *Report) Totals() VendorReport {
	var t VendorReport
	for _, v := range r.Vendors {
		t.Threads += v.Threads
		t.Messages += v.Messages
		t.Bookings += v.Bookings
		t.Skipped += v.Skipped
		t.Defects += v.Defects
		t.Cancellations += v.Cancellations
	}
	return t
}

// apply copies the report's counters onto run.
func (r *Report) apply(run *model.SyncRun) {
	t := r.Totals()
	run.Messages = t.Messages
	run.Bookings = t.Bookings
	run.Skipped = t.Skipped
	run.Defects = t.Defects
	run.Outcomes = make(map[string]int, len(r.Outcomes))
	for k, v := range r.Outcomes {
		run.Outcomes[string(k)] = v
	}
}
