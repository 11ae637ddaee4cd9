// Package fetcher defines the contract every online-judge adapter implements
// and the shared machinery around it: rate limiting, retries, the registry and
// identifier resolution.
package fetcher

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"oj_sync/internal/domain/model"
)

type AuthMethod string

const (
	AuthNone     AuthMethod = "none"
	AuthPassword AuthMethod = "password" // fetcher logs in with a stored password
	AuthCookie   AuthMethod = "cookie"   // user pastes a browser session cookie
)

// CursorStrategy tells the orchestrator how to interpret the stored cursor.
type CursorStrategy string

const (
	CursorRecordID    CursorStrategy = "record_id"
	CursorContentHash CursorStrategy = "content_hash"
)

// Meta is the static description of a platform adapter.
type Meta struct {
	Platform     string         `json:"platform"`
	DisplayName  string         `json:"display_name"`
	BaseURL      string         `json:"base_url"`
	RequiresAuth bool           `json:"requires_auth"`
	AuthMethod   AuthMethod     `json:"auth_method"`
	SupportsCode bool           `json:"supports_code"`
	Cursor       CursorStrategy `json:"cursor_strategy"`
	// UsesKnownSet asks the orchestrator to pass KnownSet in the query.
	UsesKnownSet bool `json:"-"`
	// InvalidatesSessions is set when logging in kicks the user's own
	// browser session out.
	InvalidatesSessions bool `json:"invalidates_sessions"`
}

// PlatformFetcher is implemented by every platform adapter.
type PlatformFetcher interface {
	Meta() Meta
	// ValidateAccount fails closed: any error means false.
	ValidateAccount(ctx context.Context, externalUserID string) bool
	FetchSubmissions(ctx context.Context, q SubmissionQuery) (*Batch, error)
	// FetchProblem returns nil, nil when the problem does not exist.
	FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error)
	MapStatus(raw string) model.SubmissionStatus
	MapDifficulty(raw string) int
	ProblemURL(problemID string) string
	AuthInstructions() string
}

// CodeFetcher is implemented by adapters that can download source code.
type CodeFetcher interface {
	FetchSubmissionCode(ctx context.Context, recordID string) (string, error)
}

// SubmissionQuery scopes one FetchSubmissions call.
type SubmissionQuery struct {
	ExternalUserID string
	Since          *time.Time // last successful sync, nil on first run
	Cursor         string     // value stored after the previous run
	Known          KnownSet
}

// KnownSet is a read-only view of what the store already holds for the
// account's platform. It is populated only for adapters with UsesKnownSet.
type KnownSet struct {
	Problems map[string]bool // problem ids present in the store
	Solved   map[string]bool // problem ids this account has an AC for
}

func (k KnownSet) HasProblem(id string) bool { return k.Problems[id] }

func (k KnownSet) IsSolved(id string) bool { return k.Solved[id] }

// Batch is the lazy result of FetchSubmissions. Submissions may be ranged
// over once.
type Batch struct {
	Strategy    CursorStrategy
	Submissions iter.Seq2[model.NormalizedSubmission, error]

	declared string
	set      bool
}

// Declare records the cursor the orchestrator should persist on success,
// replacing the default of "newest record id".
func (b *Batch) Declare(cursor string) {
	b.declared = cursor
	b.set = true
}

// DeclaredCursor returns the declared cursor, if any.
func (b *Batch) DeclaredCursor() (string, bool) { return b.declared, b.set }

// Credentials are the stored secrets of one account.
type Credentials struct {
	ExternalUserID string
	Cookie         string
	Password       string
}

// Config is handed to every factory. Factories ignore what they do not use.
type Config struct {
	Credentials
	BaseURL    string // override, mostly for tests
	Limiter    *RateLimiter
	Breaker    *gobreaker.CircuitBreaker[*Response]
	Retry      RetryPolicy
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Sleep replaces real waiting in retries; nil uses a timer.
	Sleep func(context.Context, time.Duration) error
}

// BaseOr returns the configured override or def.
func (c Config) BaseOr(def string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return def
}

// Factory builds a fetcher instance for one account.
type Factory func(cfg Config) (PlatformFetcher, error)
