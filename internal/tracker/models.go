package tracker

import "time"

// RunRecord represents a single pipeline run in the database.
type RunRecord struct {
	ID           int64      `json:"id"`
	CommitHash   string     `json:"commit_hash"`
	BuildNumber  *int64     `json:"build_number,omitempty"` // unset until Jenkins assigns a number
	Status       string     `json:"status"`                 // success, build_failed, build_aborted, timed_out, trigger_failed, submit_failed, submit_timed_out, in_progress
	Stage        string     `json:"stage"`                  // stage that produced the final status: check, trigger, poll, submit, done
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Status is the aggregate view served by the status endpoint.
type Status struct {
	LastProcessedCommit string      `json:"last_processed_commit"`
	LatestRun           *RunRecord  `json:"latest_run,omitempty"`
	RecentRuns          []RunRecord `json:"recent_runs"`
}
