// Package reconcile brings the calendar in line with one derived booking at
// a time.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/model"
)

// Store is the calendar the reconciler reads and mutates. Query must return
// entries in a stable order; the first matching entry is treated as
// canonical.
type Store interface {
	Query(ctx context.Context, start, end time.Time, descriptionContains string) ([]model.CalendarEntry, error)
	Create(ctx context.Context, in model.EntryInput) (*model.CalendarEntry, error)
	Update(ctx context.Context, id string, in model.EntryInput) (*model.CalendarEntry, error)
	Delete(ctx context.Context, id string) error
}

type Outcome string

const (
	Created                  Outcome = "CREATED"
	Updated                  Outcome = "UPDATED"
	SuppressedByCancellation Outcome = "SUPPRESSED_BY_CANCELLATION"
	NoOp                     Outcome = "NO_OP"
)

// Result describes what Reconcile did for one booking.
type Result struct {
	Outcome Outcome
	// EntryID is the surviving entry, empty when none remains.
	EntryID string
	Updated bool
	Deleted []string
}

type Reconciler struct {
	store           Store
	logger          *slog.Logger
	removeCancelled bool
}

type Option func(*Reconciler)

// WithRemoveCancelled makes a matched cancellation delete every entry of
// the booking instead of refreshing the canonical one.
func WithRemoveCancelled(remove bool) Option {
	return func(r *Reconciler) { r.removeCancelled = remove }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile decides and applies the create, update and delete calls for mb.
// Any store error aborts immediately and is returned unchanged in meaning;
// partial work is repaired by the next run.
func (r *Reconciler) Reconcile(ctx context.Context, mb model.MatchedBooking) (Result, error) {
	b := mb.Booking
	in := model.EntryInput{
		Title:       b.Title,
		Description: b.Description,
		Location:    b.Location,
		Start:       b.Start,
		End:         b.End,
	}

	candidates, err := r.store.Query(ctx, b.Start, b.End, booking.ProvenanceTag)
	if err != nil {
		return Result{}, fmt.Errorf("query entries for %q: %w", b.Title, err)
	}

	var matching []model.CalendarEntry
	for _, c := range candidates {
		if c.Title == b.Title && c.Location == b.Location {
			matching = append(matching, c)
		}
	}

	cancelled := mb.Cancellation != nil
	log := r.logger.With("chain", mb.Chain, "title", b.Title, "start", b.Start)

	if cancelled && r.removeCancelled {
		var res Result
		for _, e := range matching {
			if err := r.store.Delete(ctx, e.ID); err != nil {
				return res, fmt.Errorf("delete cancelled entry %s: %w", e.ID, err)
			}
			res.Deleted = append(res.Deleted, e.ID)
		}
		res.Outcome = SuppressedByCancellation
		log.Info("booking cancelled", "outcome", res.Outcome, "deleted", len(res.Deleted))
		return res, nil
	}

	var res Result
	if len(matching) > 0 {
		canonical := matching[0]
		res.EntryID = canonical.ID

		if !canonical.SameAs(in) {
			if _, err := r.store.Update(ctx, canonical.ID, in); err != nil {
				return res, fmt.Errorf("update entry %s: %w", canonical.ID, err)
			}
			res.Updated = true
		}

		for _, dup := range matching[1:] {
			if dup.ID == canonical.ID {
				continue
			}
			if err := r.store.Delete(ctx, dup.ID); err != nil {
				return res, fmt.Errorf("delete duplicate entry %s: %w", dup.ID, err)
			}
			res.Deleted = append(res.Deleted, dup.ID)
		}
	}

	switch {
	case cancelled:
		res.Outcome = SuppressedByCancellation
	case len(matching) == 0:
		e, err := r.store.Create(ctx, in)
		if err != nil {
			return res, fmt.Errorf("create entry for %q: %w", b.Title, err)
		}
		res.EntryID = e.ID
		res.Outcome = Created
	case res.Updated || len(res.Deleted) > 0:
		res.Outcome = Updated
	default:
		res.Outcome = NoOp
	}

	log.Info("booking reconciled", "outcome", res.Outcome, "entry_id", res.EntryID, "duplicates_deleted", len(res.Deleted))
	return res, nil
}
