// Package bootstrap wires configuration into the stores, platform registry
// and services shared by the server and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"oj_sync/internal/app/service"
	"oj_sync/internal/common/security"
	"oj_sync/internal/domain/repository"
	"oj_sync/internal/fetcher"
	"oj_sync/internal/fetcher/platforms"
	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/database"
	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/queue"
)

// InitLogging applies the log section of cfg to the global logger.
func InitLogging(cfg config.LogConfig) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Level
	lc.Format = cfg.Format
	lc.Caller = cfg.Caller
	logging.Init(lc)
}

// NewRegistry builds a registry with every supported platform.
func NewRegistry(cfg config.SyncConfig) *fetcher.Registry {
	reg := fetcher.NewRegistry(fetcher.RegistryOptions{
		Interval: cfg.RateLimitInterval,
		Retry: fetcher.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Timeout:     cfg.RequestTimeout,
		},
	})
	platforms.RegisterAll(reg)
	return reg
}

type Repositories struct {
	Users       repository.UserRepository
	Accounts    repository.PlatformAccountRepository
	Problems    repository.ProblemRepository
	Submissions repository.SubmissionRepository
	Jobs        repository.SyncJobRepository
}

// Store is the database side of the application.
type Store struct {
	DB    *sql.DB
	Repos Repositories
}

// OpenStore connects to PostgreSQL, applies the schema and builds the
// repositories.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	sealer, err := security.NewSealer(cfg.Security.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		DB: db,
		Repos: Repositories{
			Users:       repository.NewPgUserRepository(db),
			Accounts:    repository.NewPgPlatformAccountRepository(db, sealer),
			Problems:    repository.NewPgProblemRepository(db),
			Submissions: repository.NewPgSubmissionRepository(db),
			Jobs:        repository.NewPgSyncJobRepository(db),
		},
	}, nil
}

// NewSyncService builds the orchestrator. events may be nil.
func NewSyncService(cfg config.SyncConfig, st *Store, reg *fetcher.Registry, events service.EventPublisher) *service.SyncService {
	return service.NewSyncService(st.DB, reg, st.Repos.Accounts, st.Repos.Problems, st.Repos.Submissions, events,
		service.SyncOptions{
			FailureThreshold: cfg.FailureThreshold,
			FetchSourceCode:  cfg.FetchSourceCode,
		})
}

// Queues groups the Redis-backed coordination primitives.
type Queues struct {
	Client   *redis.Client
	Jobs     *queue.JobQueue
	Locks    *queue.Locker
	Cancels  *queue.CancelFlags
	Notifier *queue.Notifier
}

func OpenQueues(ctx context.Context, cfg config.RedisConfig) (*Queues, error) {
	rdb, err := queue.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewQueues(rdb, cfg), nil
}

func NewQueues(rdb *redis.Client, cfg config.RedisConfig) *Queues {
	return &Queues{
		Client:   rdb,
		Jobs:     queue.NewJobQueue(rdb, cfg.QueueName, cfg.DelayedQueue),
		Locks:    queue.NewLocker(rdb, cfg.LockPrefix, cfg.LockTTL),
		Cancels:  queue.NewCancelFlags(rdb, cfg.LockTTL),
		Notifier: queue.NewNotifier(rdb, cfg.EventChannel),
	}
}

// NewSyncJobService builds the job service from the sync section.
func NewSyncJobService(cfg config.SyncConfig, st *Store, reg *fetcher.Registry, q *Queues) (*service.SyncJobService, error) {
	start, end, err := config.ParseQuietHours(cfg.QuietHours)
	if err != nil {
		return nil, err
	}
	return service.NewSyncJobService(st.Repos.Jobs, st.Repos.Accounts, reg, q.Jobs, q.Cancels, service.SyncJobOptions{
		Policy: service.SessionPolicy(cfg.SessionConflictPolicy),
		Quiet:  service.QuietWindow{Start: start, End: end},
	}), nil
}
