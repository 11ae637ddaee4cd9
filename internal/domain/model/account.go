package model

import "time"

// DefaultFailureThreshold is how many consecutive failed runs deactivate an account.
const DefaultFailureThreshold = 10

// PlatformAccount holds credentials and sync state for one external judge account.
type PlatformAccount struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	Platform            string     `json:"platform"`
	ExternalUserID      string     `json:"external_user_id"`
	Cookie              string     `json:"-"` // decrypted, never exposed
	Password            string     `json:"-"`
	HasCookie           bool       `json:"has_cookie"`
	HasPassword         bool       `json:"has_password"`
	SyncCursor          *string    `json:"sync_cursor,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError       *string    `json:"last_sync_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Cursor returns the stored cursor or "".
func (a *PlatformAccount) Cursor() string {
	if a.SyncCursor == nil {
		return ""
	}
	return *a.SyncCursor
}
