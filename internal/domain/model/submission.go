package model

import "time"

// SubmissionStatus is the platform-neutral verdict of one submission.
type SubmissionStatus string

const (
	StatusAC      SubmissionStatus = "AC"
	StatusWA      SubmissionStatus = "WA"
	StatusTLE     SubmissionStatus = "TLE"
	StatusMLE     SubmissionStatus = "MLE"
	StatusRE      SubmissionStatus = "RE"
	StatusCE      SubmissionStatus = "CE"
	StatusUnknown SubmissionStatus = "UNKNOWN"
	StatusPending SubmissionStatus = "PENDING"
	StatusJudging SubmissionStatus = "JUDGING"
)

// NormalizedSubmission is what a fetcher yields for one external record.
type NormalizedSubmission struct {
	RecordID    string           `json:"record_id"` // may embed a namespace, e.g. "domain/id"
	ProblemID   string           `json:"problem_id"`
	Status      SubmissionStatus `json:"status"`
	Score       *int             `json:"score,omitempty"`
	Language    *string          `json:"language,omitempty"`
	TimeMs      *int             `json:"time_ms,omitempty"`
	MemoryKb    *int             `json:"memory_kb,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"` // UTC
	SourceCode  *string          `json:"source_code,omitempty"`
}

// Submission is a persisted NormalizedSubmission owned by a platform account.
// (Platform, RecordID) is unique across the store.
type Submission struct {
	ID          string           `json:"id"`
	AccountID   string           `json:"account_id"`
	Platform    string           `json:"platform"`
	ProblemRef  *string          `json:"problem_ref,omitempty"` // problems.id
	RecordID    string           `json:"record_id"`
	Status      SubmissionStatus `json:"status"`
	Score       *int             `json:"score,omitempty"`
	Language    *string          `json:"language,omitempty"`
	TimeMs      *int             `json:"time_ms,omitempty"`
	MemoryKb    *int             `json:"memory_kb,omitempty"`
	SourceCode  *string          `json:"source_code,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IntPtr and StrPtr keep fetcher code readable when filling optional fields.
func IntPtr(v int) *int { return &v }

func StrPtr(v string) *string { return &v }

// NonEmpty returns nil for blank strings.
func NonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
