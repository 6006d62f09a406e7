package models

import "time"

// BatchMode records how a batch was started.
type BatchMode string

const (
	ModeRun    BatchMode = "run"
	ModeResume BatchMode = "resume"
)

// BatchRun is the log entry of one batch invocation.
type BatchRun struct {
	ID           string     `json:"id"`
	Sequence     int        `json:"sequence"`
	Mode         BatchMode  `json:"mode"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	Matched      int        `json:"matched"`
	Conflicts    int        `json:"conflicts"`
	Pending      int        `json:"pending"`
	Cancelled    bool       `json:"cancelled"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewBatchRun creates a run log entry started at now.
func NewBatchRun(mode BatchMode, total int, now time.Time) *BatchRun {
	return &BatchRun{Mode: mode, Total: total, StartedAt: now, CreatedAt: now, UpdatedAt: now}
}

// Finished reports whether the run has completed, been cancelled or failed.
func (r *BatchRun) Finished() bool {
	return r.FinishedAt != nil
}

// Tally fills the counters from results.
func (r *BatchRun) Tally(results []MatchResult) {
	r.Matched, r.Conflicts, r.Pending = 0, 0, 0
	for _, res := range results {
		switch res.Status {
		case StatusMatched, StatusManual:
			r.Matched++
		case StatusConflict:
			r.Conflicts++
		case StatusPending:
			r.Pending++
		}
	}
}
