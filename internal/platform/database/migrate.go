package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"oj_sync/internal/platform/logging"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logging.Info().Msg("schema up to date")
	return nil
}
