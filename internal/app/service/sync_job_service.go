package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/domain/repository"
	"oj_sync/internal/fetcher"
	"oj_sync/internal/platform/logging"
)

// SessionPolicy decides what a sync does when logging in would kick the user
// out of their own browser session on the platform.
type SessionPolicy string

const (
	SessionProceed SessionPolicy = "proceed"
	SessionRefuse  SessionPolicy = "refuse"
	SessionQueue   SessionPolicy = "queue"
)

const sessionWarning = "this platform allows one login at a time; the sync will sign you out of open browser sessions"

// QuietWindow is a daily hour range in platform local time. End may be
// smaller than Start for windows crossing midnight.
type QuietWindow struct {
	Start, End int
}

func (w QuietWindow) contains(hour int) bool {
	if w.Start < w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

// Next returns now if it falls inside the window, else the next window start.
func (w QuietWindow) Next(now time.Time) time.Time {
	local := now.In(fetcher.PlatformZone)
	if w.contains(local.Hour()) {
		return now
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), w.Start, 0, 0, 0, fetcher.PlatformZone)
	if !start.After(local) {
		start = start.AddDate(0, 0, 1)
	}
	return start.UTC()
}

// MetaSource looks up platform metadata. *fetcher.Registry implements it.
type MetaSource interface {
	Meta(platform string) (fetcher.Meta, bool)
}

// JobQueue hands job ids to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	EnqueueAt(ctx context.Context, jobID string, at time.Time) error
}

// CancelSignal asks the worker running a job to stop between records.
type CancelSignal interface {
	Set(ctx context.Context, jobID string) error
}

type SyncJobOptions struct {
	Policy SessionPolicy
	Quiet  QuietWindow
	Now    func() time.Time
}

// SyncJobService creates and tracks asynchronous sync jobs.
type SyncJobService struct {
	jobs     repository.SyncJobRepository
	accounts repository.PlatformAccountRepository
	metas    MetaSource
	queue    JobQueue
	cancel   CancelSignal
	opts     SyncJobOptions
	log      zerolog.Logger
}

func NewSyncJobService(jobs repository.SyncJobRepository, accounts repository.PlatformAccountRepository,
	metas MetaSource, queue JobQueue, cancel CancelSignal, opts SyncJobOptions) *SyncJobService {
	if opts.Policy == "" {
		opts.Policy = SessionRefuse
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncJobService{
		jobs:     jobs,
		accounts: accounts,
		metas:    metas,
		queue:    queue,
		cancel:   cancel,
		opts:     opts,
		log:      logging.Component("sync_jobs"),
	}
}

// Trigger creates a job for accountID, or returns the job already pending or
// running for it with created=false. acknowledged means the caller accepted
// that the run may sign the user out of the platform.
func (s *SyncJobService) Trigger(ctx context.Context, accountID, trigger string, acknowledged bool) (job *model.SyncJob, created bool, err error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	if !acct.IsActive {
		return nil, false, common.ErrAccountInactive
	}

	active, err := s.jobs.FindActive(ctx, accountID)
	if err == nil {
		return active, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	meta, ok := s.metas.Meta(acct.Platform)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", fetcher.ErrUnknownPlatform, acct.Platform)
	}

	job = &model.SyncJob{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Trigger:   trigger,
		Status:    model.JobStatusPending,
	}
	if meta.InvalidatesSessions && !acknowledged {
		switch s.opts.Policy {
		case SessionProceed:
			job.Warning = model.StrPtr(sessionWarning)
		case SessionQueue:
			now := s.opts.Now()
			if at := s.opts.Quiet.Next(now); at.After(now) {
				job.NotBefore = &at
			}
		default:
			return nil, false, common.ErrSessionConflict
		}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, false, err
	}

	l := s.log.With().Str("job_id", job.ID).Str("account_id", accountID).Str("trigger", trigger).Logger()
	if job.NotBefore != nil {
		err = s.queue.EnqueueAt(ctx, job.ID, *job.NotBefore)
	} else {
		err = s.queue.Enqueue(ctx, job.ID)
	}
	if err != nil {
		msg := "could not enqueue job: " + err.Error()
		if ferr := s.jobs.Finish(context.WithoutCancel(ctx), job.ID, model.JobStatusFailed, model.JobProgress{}, &msg, s.opts.Now()); ferr != nil {
			l.Error().Err(ferr).Msg("mark unqueued job failed")
		}
		return nil, false, fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
	}

	ev := l.Info()
	if job.NotBefore != nil {
		ev = ev.Time("not_before", *job.NotBefore)
	}
	ev.Msg("sync job enqueued")
	return job, true, nil
}

func (s *SyncJobService) Get(ctx context.Context, id string) (*model.SyncJob, error) {
	return s.jobs.FindByID(ctx, id)
}

// ListForAccount returns the most recent jobs first.
func (s *SyncJobService) ListForAccount(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.ListByAccount(ctx, accountID, limit)
}

// Cancel stops a job. Pending jobs are cancelled at once; running jobs stop
// at the next record boundary and roll back.
func (s *SyncJobService) Cancel(ctx context.Context, id string) (*model.SyncJob, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model.Terminal(job.Status) {
		return nil, fmt.Errorf("%w: job already %s", common.ErrConflict, job.Status)
	}

	ok, err := s.jobs.CancelPending(ctx, id, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// already running, the worker polls the flag between records
		if err := s.cancel.Set(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
		}
		s.log.Info().Str("job_id", id).Msg("cancellation requested for running job")
	}
	return s.jobs.FindByID(ctx, id)
}
