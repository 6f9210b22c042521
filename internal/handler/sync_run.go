package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cinesync/internal/model"
	"github.com/dukerupert/cinesync/internal/pipeline"
)

type RunLister interface {
	List(ctx context.Context, limit int) ([]model.SyncRun, error)
	GetByID(ctx context.Context, id string) (*model.SyncRun, error)
}

type Syncer interface {
	Run(ctx context.Context) (*model.SyncRun, error)
}

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type SyncHandler struct {
	runs   RunLister
	syncer Syncer
	logger *slog.Logger
}

func NewSyncHandler(runs RunLister, syncer Syncer, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{runs: runs, syncer: syncer, logger: logger}
}

// ListRuns handles GET /api/runs?limit=.
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/runs/{id}.
func (h *SyncHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Trigger handles POST /api/sync. The pass runs to completion even if the
// client goes away.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncer.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a sync is already running")
	case errors.Is(err, pipeline.ErrRunnerStopped):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case err != nil && run == nil:
		h.logger.Error("sync", "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed to start")
	case err != nil:
		writeJSON(w, http.StatusBadGateway, run)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
