package domain

import "time"

// RunStatus is the outcome of a sync cycle
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "error"
)

// SyncRun records one fetch-parse-replace cycle
type SyncRun struct {
	ID         int64
	CycleID    string // UUID correlating logs, journal and notifications
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Events     int // events parsed from the remote feed
	Uploaded   int
	Deleted    int
	Skipped    int // events dropped by the future-only filter
	Error      string
}

// Duration returns how long the cycle took
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns true if the cycle did not complete
func (r *SyncRun) Failed() bool {
	return r.Status == RunFailed
}

// ReplaceStats counts the writes performed by one full replace
type ReplaceStats struct {
	Uploaded int
	Deleted  int
}
