package model

import (
	"time"
)

const (
	JobTriggerManual    = "manual"
	JobTriggerScheduled = "scheduled"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusTimedOut  = "timed_out"
	JobStatusCancelled = "cancelled"
)

// SyncJob tracks one orchestrator run for one account.
type SyncJob struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	Trigger     string      `json:"trigger"`
	Status      string      `json:"status"`
	Progress    JobProgress `json:"progress"`
	LastError   *string     `json:"last_error,omitempty"`
	Warning     *string     `json:"warning,omitempty"`
	WorkerID    *string     `json:"worker_id,omitempty"`
	NotBefore   *time.Time  `json:"not_before,omitempty"`
	HeartbeatAt *time.Time  `json:"heartbeat_at,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// JobProgress is updated between records while a job runs.
type JobProgress struct {
	Processed      int `json:"processed"`
	NewSubmissions int `json:"new_submissions"`
	NewProblems    int `json:"new_problems"`
	Skipped        int `json:"skipped"`
	Errors         int `json:"errors"`
}

// Terminal reports whether status is a final state.
func Terminal(status string) bool {
	switch status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut, JobStatusCancelled:
		return true
	}
	return false
}

// DurationSeconds is nil until the job started.
func (j *SyncJob) DurationSeconds(now time.Time) *int {
	if j.StartedAt == nil {
		return nil
	}
	end := now
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	d := int(end.Sub(*j.StartedAt).Seconds())
	return &d
}
