package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cinesync/internal/model"
	"github.com/dukerupert/cinesync/internal/reconcile"
	"github.com/dukerupert/cinesync/internal/websocket"
)

var (
	// ErrRunInProgress is returned when a pass is requested while one is running.
	ErrRunInProgress = errors.New("sync already in progress")
	ErrRunnerStopped = errors.New("sync runner stopped")
)

// RunRecorder persists run history.
type RunRecorder interface {
	Start(ctx context.Context, id string, dryRun bool) (*model.SyncRun, error)
	Finish(ctx context.Context, run *model.SyncRun) error
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Runner serializes passes of an Orchestrator and records each one.
type Runner struct {
	orch   *Orchestrator
	runs   RunRecorder
	hub    Broadcaster
	dryRun bool
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewRunner returns a Runner. runs and hub may be nil.
func NewRunner(orch *Orchestrator, runs RunRecorder, hub Broadcaster, dryRun bool, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orch:   orch,
		runs:   runs,
		hub:    hub,
		dryRun: dryRun,
		logger: logger.With("component", "runner"),
	}
}

// Run performs one pass unless another is already running, in which case it
// returns ErrRunInProgress immediately.
func (r *Runner) Run(ctx context.Context) (*model.SyncRun, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRunnerStopped
	}

	id := uuid.NewString()
	run := &model.SyncRun{
		ID:        id,
		StartedAt: time.Now().UTC(),
		DryRun:    r.dryRun,
		Status:    model.SyncStatusRunning,
	}
	if r.runs != nil {
		started, err := r.runs.Start(ctx, id, r.dryRun)
		if err != nil {
			return nil, err
		}
		run = started
	}

	log := r.logger.With("run_id", id, "dry_run", r.dryRun)
	log.Info("sync started")
	r.broadcast(websocket.NewMessage("sync_run", "started", id, nil))

	report, runErr := r.orch.Run(ctx, r.dryRun, r)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	report.apply(run)
	run.Status = model.SyncStatusSucceeded
	if runErr != nil {
		run.Status = model.SyncStatusFailed
		run.Error = runErr.Error()
	}

	if r.runs != nil {
		if err := r.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
			log.Error("record sync run", "error", err)
		}
	}

	if runErr != nil {
		log.Error("sync failed", "error", runErr, "duration", finished.Sub(run.StartedAt))
	} else {
		log.Info("sync finished",
			"messages", run.Messages,
			"bookings", run.Bookings,
			"skipped", run.Skipped,
			"defects", run.Defects,
			"outcomes", run.Outcomes,
			"duration", finished.Sub(run.StartedAt),
		)
	}
	r.broadcast(websocket.NewMessage("sync_run", "finished", id, run))

	return run, runErr
}

// Stop waits for an in-flight pass to finish and rejects later ones, so the
// stores can be closed safely afterwards.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// BookingReconciled implements Notifier.
func (r *Runner) BookingReconciled(b model.BookingEvent, res reconcile.Result) {
	r.broadcast(websocket.NewMessage("booking", "reconciled", res.EntryID, map[string]any{
		"chain":   b.Chain,
		"title":   b.Title,
		"start":   b.Start,
		"outcome": res.Outcome,
	}))
}

func (r *Runner) broadcast(msg websocket.Message) {
	if r.hub != nil {
		r.hub.Broadcast(msg)
	}
}
