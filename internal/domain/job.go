package domain

import "time"

// SyncJob tracks one background pull-request synchronization run. Jobs live
// only in process memory; a restart forgets them.
type SyncJob struct {
	ID          string       `json:"id"`
	Owner       string       `json:"owner"`
	Repo        string       `json:"repo"`
	Limit       int          `json:"limit"` // 0 means unbounded
	Status      string       `json:"status"`
	Progress    SyncProgress `json:"progress"`
	Message     string       `json:"message,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// SyncProgress holds the counters maintained by a job's sync loop. Every PR
// inspected lands in exactly one of Processed (new), Updated (refreshed) or
// Skipped (already current).
type SyncProgress struct {
	Processed    int      `json:"processed"`
	Updated      int      `json:"updated"`
	Skipped      int      `json:"skipped"`
	StoppedEarly bool     `json:"stopped_early"`
	Errors       []string `json:"errors,omitempty"`
}

// Job status constants.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// RepoSlug returns the "owner/repo" form used in logs and summaries.
func (j *SyncJob) RepoSlug() string {
	return j.Owner + "/" + j.Repo
}

// Terminal reports whether the job has reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Clone returns a deep copy safe to hand across goroutines.
func (j *SyncJob) Clone() SyncJob {
	out := *j
	if j.Progress.Errors != nil {
		out.Progress.Errors = append([]string(nil), j.Progress.Errors...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
