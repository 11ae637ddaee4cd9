package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"oj_sync/internal/domain/repository"
	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/metrics"
	"oj_sync/internal/platform/queue"
)

// tick runs fn every interval until ctx is done.
func tick(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}

// Sweeper fails running jobs whose worker stopped sending heartbeats.
type Sweeper struct {
	jobs       repository.SyncJobRepository
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewSweeper(jobs repository.SyncJobRepository, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        logging.Component("sweeper"),
	}
}

func (s *Sweeper) String() string { return "stale-job-sweeper" }

func (s *Sweeper) Serve(ctx context.Context) error {
	return tick(ctx, s.interval, func(ctx context.Context) { s.SweepOnce(ctx) })
}

// SweepOnce returns the ids of the jobs it failed.
func (s *Sweeper) SweepOnce(ctx context.Context) []string {
	now := s.now()
	ids, err := s.jobs.SweepStale(ctx, now.Add(-s.staleAfter), now)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep stale jobs")
		return nil
	}
	if len(ids) > 0 {
		metrics.StaleJobsSwept.Add(float64(len(ids)))
		s.log.Warn().Strs("job_ids", ids).Msg("failed jobs with expired heartbeats")
	}
	return ids
}

// Promoter moves delayed jobs to the ready queue when they come due.
type Promoter struct {
	queue    *queue.JobQueue
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewPromoter(q *queue.JobQueue, interval time.Duration) *Promoter {
	return &Promoter{queue: q, interval: interval, now: time.Now, log: logging.Component("promoter")}
}

func (p *Promoter) String() string { return "delayed-job-promoter" }

func (p *Promoter) Serve(ctx context.Context) error {
	return tick(ctx, p.interval, func(ctx context.Context) {
		n, err := p.queue.PromoteDue(ctx, p.now())
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error().Err(err).Msg("promote delayed jobs")
			}
			return
		}
		if n > 0 {
			p.log.Info().Int("count", n).Msg("delayed jobs promoted")
		}
	})
}
