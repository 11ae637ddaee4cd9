package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/logging"
)

var DB *sql.DB

// Connect opens the pool, verifies it and stores it in DB.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database %s@%s:%s: %w", cfg.Name, cfg.Host, cfg.Port, err)
	}

	logging.Info().Str("host", cfg.Host).Str("db", cfg.Name).Msg("connected to PostgreSQL")
	DB = db
	return db, nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logging.Info().Msg("database connection closed")
	}
}
