// Package worker runs sync jobs off the Redis queue and hosts the periodic
// background services, all under one suture supervisor tree.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oj_sync/internal/app/service"
	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/domain/repository"
	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/metrics"
	"oj_sync/internal/platform/queue"
)

// Runner executes one account sync. *service.SyncService implements it.
type Runner interface {
	SyncAccount(ctx context.Context, accountID string, hooks service.RunHooks) (*service.RunResult, error)
}

type SyncWorkerConfig struct {
	ID          string
	JobTimeout  time.Duration
	Heartbeat   time.Duration
	PollTimeout time.Duration // BRPOP wait before checking for shutdown
	LockRetry   time.Duration // delay before retrying a job whose account is busy
	Now         func() time.Time
}

// SyncWorker takes job ids off the queue and runs them one at a time.
type SyncWorker struct {
	cfg     SyncWorkerConfig
	runner  Runner
	jobs    repository.SyncJobRepository
	queue   *queue.JobQueue
	locks   *queue.Locker
	cancels *queue.CancelFlags
	log     zerolog.Logger
}

func NewSyncWorker(cfg SyncWorkerConfig, runner Runner, jobs repository.SyncJobRepository,
	q *queue.JobQueue, locks *queue.Locker, cancels *queue.CancelFlags) *SyncWorker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyncWorker{
		cfg:     cfg,
		runner:  runner,
		jobs:    jobs,
		queue:   q,
		locks:   locks,
		cancels: cancels,
		log:     logging.With().Str("component", "sync_worker").Str("worker_id", cfg.ID).Logger(),
	}
}

func (w *SyncWorker) String() string { return "sync-worker-" + w.cfg.ID }

// Serve implements suture.Service.
func (w *SyncWorker) Serve(ctx context.Context) error {
	w.log.Info().Msg("sync worker started")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		jobID, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("dequeue failed")
			if !sleep(ctx, 2*time.Second) {
				return ctx.Err()
			}
			continue
		}
		if jobID == "" {
			continue
		}
		w.Process(ctx, jobID)
	}
}

// Process runs one job to a terminal state, or requeues it if the account
// is locked by another worker.
func (w *SyncWorker) Process(ctx context.Context, jobID string) {
	l := w.log.With().Str("job_id", jobID).Logger()

	job, err := w.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			l.Warn().Msg("queued job does not exist")
		} else {
			l.Error().Err(err).Msg("load job")
		}
		return
	}
	if job.Status != model.JobStatusPending {
		l.Debug().Str("status", job.Status).Msg("job no longer pending, dropping")
		return
	}
	l = l.With().Str("account_id", job.AccountID).Logger()

	lock, err := w.locks.Acquire(ctx, job.AccountID)
	if err != nil {
		if !errors.Is(err, queue.ErrLockHeld) {
			l.Error().Err(err).Msg("acquire account lock")
		}
		at := w.cfg.Now().Add(w.cfg.LockRetry)
		if qerr := w.queue.EnqueueAt(context.WithoutCancel(ctx), jobID, at); qerr != nil {
			l.Error().Err(qerr).Msg("requeue job")
		} else {
			l.Info().Time("retry_at", at).Msg("account busy, job requeued")
		}
		return
	}
	defer func() {
		if _, err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.Warn().Err(err).Msg("release account lock")
		}
	}()

	started := w.cfg.Now()
	claimed, err := w.jobs.Claim(ctx, jobID, w.cfg.ID, started)
	if err != nil || !claimed {
		if err != nil {
			l.Error().Err(err).Msg("claim job")
		}
		return
	}
	l.Info().Msg("job started")

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		progress model.JobProgress
	)
	current := func() model.JobProgress {
		mu.Lock()
		defer mu.Unlock()
		return progress
	}
	hooks := service.RunHooks{
		JobID: jobID,
		Progress: func(p model.JobProgress) {
			mu.Lock()
			progress = p
			mu.Unlock()
		},
		Check: func(ctx context.Context) error {
			set, err := w.cancels.IsSet(ctx, jobID)
			if err != nil {
				l.Warn().Err(err).Msg("check cancel flag")
				return nil
			}
			if set {
				return service.ErrRunCancelled
			}
			return nil
		},
	}

	stop := make(chan struct{})
	beats := sync.WaitGroup{}
	beats.Add(1)
	go func() {
		defer beats.Done()
		w.heartbeat(runCtx, stop, jobID, lock, current, l)
	}()

	res, runErr := w.runner.SyncAccount(runCtx, job.AccountID, hooks)
	close(stop)
	beats.Wait()

	status, final := model.JobStatusSucceeded, current()
	var lastErr *string
	if runErr != nil {
		status = classify(ctx, runErr)
		msg := runErr.Error()
		if status == model.JobStatusFailed && ctx.Err() != nil {
			msg = "interrupted by worker shutdown: " + msg
		}
		lastErr = &msg
	} else if res != nil {
		final = res.Progress
	}

	finished := w.cfg.Now()
	if err := w.jobs.Finish(context.WithoutCancel(ctx), jobID, status, final, lastErr, finished); err != nil {
		l.Error().Err(err).Msg("finish job")
	}
	if err := w.cancels.Clear(context.WithoutCancel(ctx), jobID); err != nil {
		l.Debug().Err(err).Msg("clear cancel flag")
	}
	metrics.JobDuration.WithLabelValues(status).Observe(finished.Sub(started).Seconds())

	ev := l.Info()
	if runErr != nil {
		ev = l.Warn().Err(runErr)
	}
	ev.Str("status", status).Int("processed", final.Processed).Int("new_submissions", final.NewSubmissions).
		Dur("took", finished.Sub(started)).Msg("job finished")
}

// classify maps a run error to a terminal job status. A deadline counts as
// a timeout only when the worker itself is still alive.
func classify(parent context.Context, err error) string {
	switch {
	case errors.Is(err, service.ErrRunCancelled):
		return model.JobStatusCancelled
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return model.JobStatusTimedOut
	default:
		return model.JobStatusFailed
	}
}

func (w *SyncWorker) heartbeat(ctx context.Context, stop <-chan struct{}, jobID string, lock *queue.Lock,
	current func() model.JobProgress, l zerolog.Logger) {
	t := time.NewTicker(w.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.jobs.Heartbeat(ctx, jobID, current(), w.cfg.Now()); err != nil {
				l.Warn().Err(err).Msg("heartbeat")
			}
			if err := lock.Refresh(ctx); err != nil {
				l.Warn().Err(err).Msg("refresh account lock")
			}
		}
	}
}

// sleep waits d or until ctx is done, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
