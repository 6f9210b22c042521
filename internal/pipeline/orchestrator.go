// Package pipeline drives one sync pass: search every vendor's mail, parse
// bookings, match cancellations and reconcile each booking in turn.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/grammar"
	"github.com/dukerupert/cinesync/internal/mailbox"
	"github.com/dukerupert/cinesync/internal/model"
	"github.com/dukerupert/cinesync/internal/reconcile"
)

// RuntimeResolver looks up runtimes for vendors that omit them.
type RuntimeResolver interface {
	Runtime(ctx context.Context, title string) (int, bool)
}

// Notifier receives one call per reconciled booking.
type Notifier interface {
	BookingReconciled(b model.BookingEvent, res reconcile.Result)
}

type Config struct {
	Mailbox  mailbox.Searcher
	Grammars []grammar.Grammar
	Builder  *booking.Builder
	Resolver RuntimeResolver // optional
	Store    reconcile.Store
	Logger   *slog.Logger

	// LinkSources adds the source message permalink to descriptions.
	LinkSources     bool
	RemoveCancelled bool
}

type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Builder == nil {
		cfg.Builder = booking.NewBuilder(nil, logger)
	}
	return &Orchestrator{cfg: cfg, logger: logger.With("component", "pipeline")}
}

// Run performs one pass. With dryRun set, calendar mutations are logged
// instead of applied. A mailbox or store failure aborts the pass and the
// partial report is returned with the error.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool, notify Notifier) (*Report, error) {
	report := newReport()

	var matched []model.MatchedBooking
	for _, g := range o.cfg.Grammars {
		vr := report.vendor(g.Name())

		bookings, err := o.collectBookings(ctx, g, vr)
		if err != nil {
			return report, err
		}
		cancellations, err := o.collectCancellations(ctx, g, vr)
		if err != nil {
			return report, err
		}
		matched = append(matched, booking.MatchCancellations(g.Name(), bookings, cancellations)...)
	}

	var store reconcile.Store = o.cfg.Store
	if dryRun {
		store = reconcile.NewDryRunStore(store, o.logger)
	}
	r := reconcile.New(store,
		reconcile.WithRemoveCancelled(o.cfg.RemoveCancelled),
		reconcile.WithLogger(o.logger),
	)

	for _, mb := range matched {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := r.Reconcile(ctx, mb)
		if err != nil {
			return report, fmt.Errorf("reconcile %s %q: %w", mb.Chain, mb.Booking.Title, err)
		}
		report.record(mb, res)
		if notify != nil {
			notify.BookingReconciled(mb.Booking, res)
		}
	}

	return report, nil
}

func (o *Orchestrator) collectBookings(ctx context.Context, g grammar.Grammar, vr *VendorReport) ([]model.BookingEvent, error) {
	log := o.logger.With("vendor", g.Name())

	threads, err := o.cfg.Mailbox.Search(ctx, g.Query())
	if err != nil {
		return nil, fmt.Errorf("search %s mail: %w", g.Name(), err)
	}
	log.Info("found threads", "count", len(threads))
	vr.Threads += len(threads)

	var out []model.BookingEvent
	for _, t := range threads {
		for _, msg := range t.Chronological() {
			vr.Messages++
			ev, err := o.parse(ctx, g, msg)
			switch {
			case err == nil:
				vr.Bookings++
				out = append(out, ev)
			case errors.Is(err, grammar.ErrNotBooking):
				vr.Skipped++
				log.Debug("message skipped", "message_id", msg.ID, "reason", err)
			default:
				vr.Defects++
				log.Error("message rejected", "message_id", msg.ID, "error", err)
			}
		}
	}
	return out, nil
}

func (o *Orchestrator) parse(ctx context.Context, g grammar.Grammar, msg mailbox.Message) (model.BookingEvent, error) {
	fields, err := g.Extract(msg.Body)
	if err != nil {
		return model.BookingEvent{}, err
	}

	if fields.RuntimeMinutes <= 0 && o.cfg.Resolver != nil {
		if minutes, ok := o.cfg.Resolver.Runtime(ctx, fields.Film); ok {
			fields.RuntimeMinutes = minutes
		}
	}
	if o.cfg.LinkSources {
		fields.SourceLink = msg.Permalink
	}

	return o.cfg.Builder.Build(ctx, fields)
}

func (o *Orchestrator) collectCancellations(ctx context.Context, g grammar.Grammar, vr *VendorReport) ([]model.CancellationRecord, error) {
	cg, ok := g.(grammar.CancellationGrammar)
	if !ok {
		return nil, nil
	}

	threads, err := o.cfg.Mailbox.Search(ctx, cg.CancellationQuery())
	if err != nil {
		return nil, fmt.Errorf("search %s cancellations: %w", g.Name(), err)
	}

	var out []model.CancellationRecord
	for _, t := range threads {
		for _, msg := range t.Chronological() {
			c, err := cg.ExtractCancellation(msg.Body)
			if err != nil {
				o.logger.Debug("cancellation skipped", "vendor", g.Name(), "message_id", msg.ID, "reason", err)
				continue
			}
			out = append(out, c)
		}
	}
	vr.Cancellations += len(out)
	return out, nil
}
