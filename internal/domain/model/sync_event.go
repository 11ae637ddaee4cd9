package model

import "time"

// SyncCompleted is published after a successful run for downstream analysis.
type SyncCompleted struct {
	AccountID        string    `json:"account_id"`
	Platform         string    `json:"platform"`
	JobID            string    `json:"job_id,omitempty"`
	NewSubmissionIDs []string  `json:"new_submission_ids"`
	NewProblemIDs    []string  `json:"new_problem_ids"`
	CompletedAt      time.Time `json:"completed_at"`
}
