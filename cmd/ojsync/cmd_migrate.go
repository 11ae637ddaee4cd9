package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"oj_sync/internal/app/bootstrap"
	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrap.InitLogging(cfg.Log)
	db, err := database.Connect(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(cmd.Context(), db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
	return nil
}
