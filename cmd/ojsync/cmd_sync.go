package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"oj_sync/internal/app/bootstrap"
	"oj_sync/internal/app/service"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/database"
	"oj_sync/internal/platform/queue"
)

var syncFlags struct {
	publish bool
	verbose bool
}

var syncCmd = &cobra.Command{
	Use:   "sync <account-id>",
	Short: "Run one sync of an account in this process",
	Long: "Runs the sync orchestrator inline, bypassing the job queue. The account\n" +
		"lock is not taken, so do not run it while workers may pick up the same account.",
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	f := syncCmd.Flags()
	f.BoolVar(&syncFlags.publish, "publish", false, "publish the completion event to Redis")
	f.BoolVarP(&syncFlags.verbose, "verbose", "v", false, "print progress after every record")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrap.InitLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var events service.EventPublisher
	if syncFlags.publish {
		q, err := bootstrap.OpenQueues(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer queue.CloseRedis()
		events = q.Notifier
	}

	out := cmd.OutOrStdout()
	svc := bootstrap.NewSyncService(cfg.Sync, store, bootstrap.NewRegistry(cfg.Sync), events)
	hooks := service.RunHooks{}
	if syncFlags.verbose {
		hooks.Progress = func(p model.JobProgress) {
			fmt.Fprintf(out, "processed=%d new=%d skipped=%d errors=%d\n", p.Processed, p.NewSubmissions, p.Skipped, p.Errors)
		}
	}

	res, err := svc.SyncAccount(ctx, args[0], hooks)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", context.Cause(ctx))
		}
		return err
	}
	p := res.Progress
	fmt.Fprintf(out, "processed %d records: %d new submissions, %d new problems, %d skipped, %d errors\n",
		p.Processed, p.NewSubmissions, p.NewProblems, p.Skipped, p.Errors)
	fmt.Fprintf(out, "cursor: %s\n", res.Cursor)
	return nil
}
