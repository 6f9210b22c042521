package model

import "time"

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun records one pass of the mailbox-to-calendar pipeline.
type SyncRun struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DryRun     bool           `json:"dry_run"`
	Status     SyncStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	Messages   int            `json:"messages"`
	Bookings   int            `json:"bookings"`
	Skipped    int            `json:"skipped"`
	Defects    int            `json:"defects"`
	Outcomes   map[string]int `json:"outcomes"`
}
