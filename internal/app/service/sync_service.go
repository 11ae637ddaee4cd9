package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"oj_sync/internal/app/tagmap"
	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/domain/repository"
	"oj_sync/internal/fetcher"
	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/metrics"
)

// ErrRunCancelled aborts a run on request. It never counts against account
// health.
var ErrRunCancelled = errors.New("sync run cancelled")

// FetcherFactory builds a fetcher for one account. *fetcher.Registry
// implements it.
type FetcherFactory interface {
	New(platform string, creds fetcher.Credentials) (fetcher.PlatformFetcher, error)
}

// EventPublisher delivers SyncCompleted to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SyncCompleted) error
}

type SyncOptions struct {
	FailureThreshold int
	FetchSourceCode  bool
	PublishTimeout   time.Duration
	Now              func() time.Time
}

// RunHooks lets the caller observe and abort a run. Both are optional.
type RunHooks struct {
	JobID    string
	Progress func(model.JobProgress)
	// Check is called before each record; a non-nil error aborts the run.
	Check func(ctx context.Context) error
}

type RunResult struct {
	Progress         model.JobProgress
	Cursor           string
	NewSubmissionIDs []string
	NewProblemIDs    []string
}

// SyncService runs one incremental sync of one platform account.
type SyncService struct {
	db          *sql.DB
	fetchers    FetcherFactory
	accounts    repository.PlatformAccountRepository
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	events      EventPublisher
	opts        SyncOptions
	log         zerolog.Logger
}

func NewSyncService(db *sql.DB, fetchers FetcherFactory, accounts repository.PlatformAccountRepository,
	problems repository.ProblemRepository, submissions repository.SubmissionRepository,
	events EventPublisher, opts SyncOptions) *SyncService {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = model.DefaultFailureThreshold
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncService{
		db:          db,
		fetchers:    fetchers,
		accounts:    accounts,
		problems:    problems,
		submissions: submissions,
		events:      events,
		opts:        opts,
		log:         logging.Component("sync"),
	}
}

// run carries the per-run state of SyncAccount.
type run struct {
	account *model.PlatformAccount
	fetcher fetcher.PlatformFetcher
	tx      *sql.Tx
	log     zerolog.Logger

	progress model.JobProgress
	problems map[string]*string // platform problem id -> problems.id, nil if unusable
	newSubs  []newSubmission
	newProbs []string
}

type newSubmission struct {
	id       string
	recordID string
	hasCode  bool
}

// SyncAccount pulls everything new for accountID. On success the cursor is
// advanced and health is reset in the same transaction as the inserted rows.
// On failure the transaction is rolled back, the cursor is untouched and the
// failure counter grows unless the run was cancelled.
func (s *SyncService) SyncAccount(ctx context.Context, accountID string, hooks RunHooks) (*RunResult, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, common.ErrAccountInactive
	}

	l := s.log.With().Str("account_id", acct.ID).Str("platform", acct.Platform).Str("job_id", hooks.JobID).Logger()

	f, err := s.fetchers.New(acct.Platform, fetcher.Credentials{
		ExternalUserID: acct.ExternalUserID,
		Cookie:         acct.Cookie,
		Password:       acct.Password,
	})
	if err != nil {
		// a misconfigured platform is not the account's fault
		l.Error().Err(err).Msg("cannot build fetcher")
		return nil, err
	}

	r := &run{account: acct, fetcher: f, log: l, problems: map[string]*string{}}
	res, err := s.execute(ctx, r, hooks)
	if err != nil {
		return res, s.fail(ctx, r, err)
	}

	metrics.SyncRuns.WithLabelValues(acct.Platform, "succeeded").Inc()
	metrics.SubmissionsIngested.WithLabelValues(acct.Platform).Add(float64(res.Progress.NewSubmissions))
	metrics.ProblemsCreated.WithLabelValues(acct.Platform).Add(float64(res.Progress.NewProblems))
	l.Info().Int("processed", res.Progress.Processed).Int("new_submissions", res.Progress.NewSubmissions).
		Int("new_problems", res.Progress.NewProblems).Int("errors", res.Progress.Errors).
		Str("cursor", res.Cursor).Msg("sync succeeded")

	if s.opts.FetchSourceCode {
		s.fetchSourceCode(ctx, r)
	}
	s.publish(hooks.JobID, r, res)
	return res, nil
}

func (s *SyncService) execute(ctx context.Context, r *run, hooks RunHooks) (*RunResult, error) {
	meta := r.fetcher.Meta()
	q := fetcher.SubmissionQuery{
		ExternalUserID: r.account.ExternalUserID,
		Since:          r.account.LastSyncAt,
		Cursor:         r.account.Cursor(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sync transaction: %w", err)
	}
	defer tx.Rollback()
	r.tx = tx

	if meta.UsesKnownSet {
		if q.Known.Problems, err = s.problems.ProblemIDs(ctx, tx, r.account.Platform); err != nil {
			return nil, err
		}
		if q.Known.Solved, err = s.submissions.SolvedProblemIDs(ctx, tx, r.account.ID); err != nil {
			return nil, err
		}
	}

	batch, err := r.fetcher.FetchSubmissions(ctx, q)
	if err != nil {
		return nil, err
	}

	stored := r.account.Cursor()
	firstID := ""
	for sub, err := range batch.Submissions {
		if err != nil {
			return nil, err
		}
		if err := checkRun(ctx, hooks); err != nil {
			return nil, err
		}
		if firstID == "" {
			firstID = sub.RecordID
		}
		if batch.Strategy == fetcher.CursorRecordID && stored != "" && sub.RecordID == stored {
			break
		}
		if err := s.ingest(ctx, r, sub); err != nil {
			return nil, err
		}
		if hooks.Progress != nil {
			hooks.Progress(r.progress)
		}
	}

	cursor := stored
	if declared, ok := batch.DeclaredCursor(); ok {
		cursor = declared
	} else if firstID != "" {
		cursor = firstID
	}
	if err := s.accounts.MarkSyncSuccess(ctx, tx, r.account.ID, cursor, s.opts.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sync transaction: %w", err)
	}

	res := &RunResult{Progress: r.progress, Cursor: cursor, NewProblemIDs: r.newProbs}
	for _, ns := range r.newSubs {
		res.NewSubmissionIDs = append(res.NewSubmissionIDs, ns.id)
	}
	return res, nil
}

func checkRun(ctx context.Context, hooks RunHooks) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hooks.Check != nil {
		return hooks.Check(ctx)
	}
	return nil
}

// ingest stores one record. A record whose problem number cannot be resolved
// is counted and left out, so a later run can pick it up again.
func (s *SyncService) ingest(ctx context.Context, r *run, sub model.NormalizedSubmission) error {
	r.progress.Processed++

	exists, err := s.submissions.Exists(ctx, r.tx, r.account.Platform, sub.RecordID)
	if err != nil {
		return err
	}
	if exists {
		r.progress.Skipped++
		return nil
	}

	ref, err := s.ensureProblem(ctx, r, sub.ProblemID)
	if err != nil {
		if fatal(err) {
			return err
		}
		r.progress.Errors++
		r.log.Warn().Err(err).Str("problem_id", sub.ProblemID).Str("record_id", sub.RecordID).
			Msg("problem unresolved, skipping submission")
		return nil
	}

	row := &model.Submission{
		ID:          uuid.NewString(),
		AccountID:   r.account.ID,
		Platform:    r.account.Platform,
		ProblemRef:  ref,
		RecordID:    sub.RecordID,
		Status:      sub.Status,
		Score:       sub.Score,
		Language:    sub.Language,
		TimeMs:      sub.TimeMs,
		MemoryKb:    sub.MemoryKb,
		SourceCode:  sub.SourceCode,
		SubmittedAt: sub.SubmittedAt,
	}
	inserted, err := s.submissions.Insert(ctx, r.tx, row)
	if err != nil {
		return err
	}
	if !inserted {
		r.progress.Skipped++
		return nil
	}
	r.progress.NewSubmissions++
	r.newSubs = append(r.newSubs, newSubmission{id: row.ID, recordID: row.RecordID, hasCode: row.SourceCode != nil})
	return nil
}

// fatal reports whether a problem lookup error aborts the run. Only an
// unresolvable problem number is tolerated; network exhaustion, rate limits,
// parse and auth failures all fail the run and keep the cursor.
func fatal(err error) bool {
	return !errors.Is(err, fetcher.ErrUnresolved)
}

// ensureProblem returns the problems.id for a platform problem, creating the
// row on first reference and backfilling empty content otherwise.
func (s *SyncService) ensureProblem(ctx context.Context, r *run, problemID string) (*string, error) {
	if problemID == "" {
		return nil, nil
	}
	if ref, seen := r.problems[problemID]; seen {
		if ref == nil {
			return nil, fetcher.E(fetcher.ErrUnresolved, r.account.Platform, "problem", nil)
		}
		return ref, nil
	}

	platform := r.account.Platform
	existing, err := s.problems.FindByPlatformID(ctx, r.tx, platform, problemID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		r.problems[problemID] = &existing.ID
		if existing.MissingContent() {
			if err := s.backfill(ctx, r, existing); err != nil {
				return &existing.ID, err
			}
		}
		return &existing.ID, nil
	}

	n, err := r.fetcher.FetchProblem(ctx, problemID)
	switch {
	case fetcher.IsNotFound(err):
		n = nil
	case errors.Is(err, fetcher.ErrUnresolved):
		r.problems[problemID] = nil
		return nil, err
	case err != nil:
		return nil, err
	}

	p := &model.Problem{
		ID:        uuid.NewString(),
		Platform:  platform,
		ProblemID: problemID,
		URL:       r.fetcher.ProblemURL(problemID),
	}
	if n != nil {
		p.Title = n.Title
		p.DifficultyRaw = n.DifficultyRaw
		if n.DifficultyRaw != nil {
			p.Difficulty = r.fetcher.MapDifficulty(*n.DifficultyRaw)
		}
		if n.URL != "" {
			p.URL = n.URL
		}
		p.Source = n.Source
		p.Description = n.Description
		p.InputDesc = n.InputDesc
		p.OutputDesc = n.OutputDesc
		p.Examples = n.Examples
		p.Hint = n.Hint
		p.PlatformTags = n.Tags
		mapped, unmapped := tagmap.Split(platform, n.Tags)
		if len(unmapped) > 0 {
			r.log.Debug().Strs("tags", unmapped).Str("problem_id", problemID).Msg("unmapped platform tags")
		}
		p.Tags = mapped
	} else {
		r.log.Debug().Str("problem_id", problemID).Msg("problem not found on platform, storing stub")
	}

	created, err := s.problems.Create(ctx, r.tx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		// another account of the same platform created it first
		existing, err := s.problems.FindByPlatformID(ctx, r.tx, platform, problemID)
		if err != nil {
			return nil, err
		}
		r.problems[problemID] = &existing.ID
		return &existing.ID, nil
	}
	if len(p.Tags) > 0 {
		if err := s.problems.AddTags(ctx, r.tx, p.ID, p.Tags); err != nil {
			return nil, err
		}
	}
	r.progress.NewProblems++
	r.newProbs = append(r.newProbs, p.ID)
	r.problems[problemID] = &p.ID
	return &p.ID, nil
}

// backfill fills empty content columns of a known problem. Existing values
// are never overwritten.
func (s *SyncService) backfill(ctx context.Context, r *run, p *model.Problem) error {
	n, err := r.fetcher.FetchProblem(ctx, p.ProblemID)
	if fetcher.IsNotFound(err) || errors.Is(err, fetcher.ErrUnresolved) {
		return nil
	}
	if err != nil || n == nil {
		return err
	}
	content, changed := p.BackfillFrom(n)
	if !changed {
		return nil
	}
	r.log.Debug().Str("problem_id", p.ProblemID).Msg("backfilling problem content")
	return s.problems.Backfill(ctx, r.tx, p.ID, content)
}

// fetchSourceCode downloads code for the submissions of a committed run.
// Failures only cost the code, never the run.
func (s *SyncService) fetchSourceCode(ctx context.Context, r *run) {
	cf, ok := r.fetcher.(fetcher.CodeFetcher)
	if !ok || !r.fetcher.Meta().SupportsCode {
		return
	}
	for _, ns := range r.newSubs {
		if ns.hasCode {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		code, err := cf.FetchSubmissionCode(ctx, ns.recordID)
		if err != nil {
			r.log.Debug().Err(err).Str("record_id", ns.recordID).Msg("source code unavailable")
			continue
		}
		if code == "" {
			continue
		}
		if err := s.submissions.SetSourceCode(ctx, ns.id, code); err != nil {
			r.log.Warn().Err(err).Str("record_id", ns.recordID).Msg("store source code")
		}
	}
}

// publish fires the downstream trigger without waiting for it.
func (s *SyncService) publish(jobID string, r *run, res *RunResult) {
	if s.events == nil || (len(res.NewSubmissionIDs) == 0 && len(res.NewProblemIDs) == 0) {
		return
	}
	ev := model.SyncCompleted{
		AccountID:        r.account.ID,
		Platform:         r.account.Platform,
		JobID:            jobID,
		NewSubmissionIDs: res.NewSubmissionIDs,
		NewProblemIDs:    res.NewProblemIDs,
		CompletedAt:      s.opts.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			r.log.Warn().Err(err).Msg("publish sync.completed")
		}
	}()
}

// fail records a failed run against account health and returns err.
func (s *SyncService) fail(ctx context.Context, r *run, err error) error {
	platform := r.account.Platform
	if errors.Is(err, ErrRunCancelled) || errors.Is(err, context.Canceled) {
		metrics.SyncRuns.WithLabelValues(platform, "cancelled").Inc()
		r.log.Info().Err(err).Msg("sync aborted")
		return err
	}

	metrics.SyncRuns.WithLabelValues(platform, "failed").Inc()
	failures, active, herr := s.accounts.RecordSyncFailure(context.WithoutCancel(ctx), r.account.ID, err.Error(), s.opts.FailureThreshold)
	if herr != nil {
		r.log.Error().Err(herr).Msg("record sync failure")
		return errors.Join(err, herr)
	}
	r.log.Error().Err(err).Int("consecutive_failures", failures).Msg("sync failed")
	if !active && r.account.IsActive {
		metrics.AccountsDeactivated.WithLabelValues(platform).Inc()
		r.log.Warn().Int("threshold", s.opts.FailureThreshold).Msg("account deactivated after repeated failures")
	}
	return err
}
