package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
	"oj_sync/internal/platform/logging"
)

// Triggerer creates sync jobs. *service.SyncJobService implements it.
type Triggerer interface {
	Trigger(ctx context.Context, accountID, trigger string, acknowledged bool) (*model.SyncJob, bool, error)
}

// ActiveAccounts lists the accounts due for scheduled syncs.
type ActiveAccounts interface {
	ListActive(ctx context.Context) ([]model.PlatformAccount, error)
}

// Scheduler enqueues a sync for every active account on a cron schedule.
// Schedules are read in platform local time.
type Scheduler struct {
	spec     string
	accounts ActiveAccounts
	trigger  Triggerer
	log      zerolog.Logger
}

func NewScheduler(spec string, accounts ActiveAccounts, trigger Triggerer) *Scheduler {
	return &Scheduler{spec: spec, accounts: accounts, trigger: trigger, log: logging.Component("scheduler")}
}

func (s *Scheduler) String() string { return "sync-scheduler" }

func (s *Scheduler) Serve(ctx context.Context) error {
	c := cron.New(cron.WithLocation(fetcher.PlatformZone))
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		// a bad spec will not fix itself on restart
		s.log.Error().Err(err).Str("schedule", s.spec).Msg("invalid schedule, scheduler disabled")
		return fmt.Errorf("%w: %v", suture.ErrDoNotRestart, err)
	}
	c.Start()
	s.log.Info().Str("schedule", s.spec).Msg("scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// RunOnce triggers scheduled jobs and returns how many were created.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	accts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list active accounts")
		return 0
	}
	created := 0
	for _, a := range accts {
		if ctx.Err() != nil {
			break
		}
		_, isNew, err := s.trigger.Trigger(ctx, a.ID, model.JobTriggerScheduled, false)
		switch {
		case err == nil:
			if isNew {
				created++
			}
		case errors.Is(err, common.ErrSessionConflict):
			s.log.Debug().Str("account_id", a.ID).Msg("skipped, sync would end the user's platform session")
		default:
			s.log.Warn().Err(err).Str("account_id", a.ID).Msg("schedule sync")
		}
	}
	s.log.Info().Int("accounts", len(accts)).Int("enqueued", created).Msg("scheduled sync round")
	return created
}
