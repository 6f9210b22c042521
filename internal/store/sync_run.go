package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/cinesync/internal/model"
)

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Start records a new run in the running state.
func (s *RunStore) Start(ctx context.Context, id string, dryRun bool) (*model.SyncRun, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, dry_run, status) VALUES (?, ?, ?, ?)`,
		id, now, dryRun, model.SyncStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}
	return &model.SyncRun{
		ID:        id,
		StartedAt: now,
		DryRun:    dryRun,
		Status:    model.SyncStatusRunning,
		Outcomes:  map[string]int{},
	}, nil
}

// Finish stores the final counters and status of run.
func (s *RunStore) Finish(ctx context.Context, run *model.SyncRun) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET finished_at = ?, status = ?, error_message = ?, messages = ?, bookings = ?, skipped = ?, defects = ?, outcomes = ?
		 WHERE id = ?`,
		run.FinishedAt, run.Status, errMsg, run.Messages, run.Bookings, run.Skipped, run.Defects, string(outcomes), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, dry_run, status, error_message, messages, bookings, skipped, defects, outcomes`

func scanRun(row interface{ Scan(...any) error }) (model.SyncRun, error) {
	var r model.SyncRun
	var finishedAt sql.NullTime
	var errMsg sql.NullString
	var outcomes string
	if err := row.Scan(&r.ID, &r.StartedAt, &finishedAt, &r.DryRun, &r.Status, &errMsg,
		&r.Messages, &r.Bookings, &r.Skipped, &r.Defects, &outcomes); err != nil {
		return r, err
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	r.Error = errMsg.String
	r.Outcomes = map[string]int{}
	if err := json.Unmarshal([]byte(outcomes), &r.Outcomes); err != nil {
		return r, fmt.Errorf("decode outcomes: %w", err)
	}
	return r, nil
}

func (s *RunStore) GetByID(ctx context.Context, id string) (*model.SyncRun, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run %s: %w", id, err)
	}
	return &r, nil
}

// List returns the most recent runs first.
func (s *RunStore) List(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
