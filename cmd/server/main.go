package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oj_sync/internal/api"
	"oj_sync/internal/app/bootstrap"
	"oj_sync/internal/app/service"
	"oj_sync/internal/app/worker"
	"oj_sync/internal/common/security"
	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/database"
	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/queue"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrap.InitLogging(cfg.Log)
	logging.Info().Str("port", cfg.Server.Port).Int("workers", cfg.Sync.Workers).Msg("configuration loaded")

	// 2. JWT
	security.InitJWT(cfg.Security.JWTSecret, cfg.Security.JWTExpiry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database and Redis
	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	queues, err := bootstrap.OpenQueues(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer queue.CloseRedis()

	// 4. Platforms and services
	registry := bootstrap.NewRegistry(cfg.Sync)
	syncService := bootstrap.NewSyncService(cfg.Sync, store, registry, queues.Notifier)
	jobService, err := bootstrap.NewSyncJobService(cfg.Sync, store, registry, queues)
	if err != nil {
		return err
	}
	authService := service.NewAuthService(store.Repos.Users)
	accountService := service.NewAccountService(store.Repos.Accounts, registry)

	// 5. Supervisor tree
	tree := worker.NewTree(logging.NewSlogLogger(), worker.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	host, _ := os.Hostname()
	for i := range cfg.Sync.Workers {
		tree.AddJobService(worker.NewSyncWorker(worker.SyncWorkerConfig{
			ID:         fmt.Sprintf("%s-%d", host, i+1),
			JobTimeout: cfg.Sync.JobTimeout,
			Heartbeat:  cfg.Sync.Heartbeat,
		}, syncService, store.Repos.Jobs, queues.Jobs, queues.Locks, queues.Cancels))
	}
	tree.AddJobService(worker.NewSweeper(store.Repos.Jobs, cfg.Sync.SweepInterval, cfg.Sync.StaleAfter))
	tree.AddJobService(worker.NewPromoter(queues.Jobs, cfg.Sync.PromoteInterval))
	if cfg.Sync.SchedulerEnabled {
		tree.AddJobService(worker.NewScheduler(cfg.Sync.Schedule, store.Repos.Accounts, jobService))
	}

	// 6. HTTP
	router := api.NewRouter(api.Services{
		Auth:           authService,
		Accounts:       accountService,
		Jobs:           jobService,
		Catalog:        registry,
		SyncTriggerRPM: cfg.Server.SyncTriggerRPM,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      70 * time.Second, // above the router's 60s request timeout
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(worker.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("server starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("server exited gracefully")
	return nil
}
