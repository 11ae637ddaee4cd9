package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
)

type SyncJobRepository interface {
	Create(ctx context.Context, job *model.SyncJob) error
	FindByID(ctx context.Context, id string) (*model.SyncJob, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error)
	// FindActive returns the pending or running job of an account, if any.
	FindActive(ctx context.Context, accountID string) (*model.SyncJob, error)
	// Claim moves a pending job to running. It returns false if the job was
	// not pending any more.
	Claim(ctx context.Context, id, workerID string, now time.Time) (bool, error)
	Heartbeat(ctx context.Context, id string, p model.JobProgress, now time.Time) error
	// Finish records a terminal status. Jobs already terminal are left alone.
	Finish(ctx context.Context, id, status string, p model.JobProgress, lastError *string, now time.Time) error
	// CancelPending cancels a job that has not started yet.
	CancelPending(ctx context.Context, id string, now time.Time) (bool, error)
	// SweepStale fails running jobs whose heartbeat is older than before.
	SweepStale(ctx context.Context, before, now time.Time) ([]string, error)
}

type pgSyncJobRepository struct {
	db *sql.DB
}

func NewPgSyncJobRepository(db *sql.DB) SyncJobRepository {
	return &pgSyncJobRepository{db: db}
}

const jobColumns = `id, account_id, trigger, status, processed, new_submissions, new_problems, skipped, errors,
	last_error, warning, worker_id, not_before, heartbeat_at, started_at, finished_at, created_at, updated_at`

func scanJob(row rowScanner) (*model.SyncJob, error) {
	var j model.SyncJob
	err := row.Scan(&j.ID, &j.AccountID, &j.Trigger, &j.Status,
		&j.Progress.Processed, &j.Progress.NewSubmissions, &j.Progress.NewProblems, &j.Progress.Skipped, &j.Progress.Errors,
		&j.LastError, &j.Warning, &j.WorkerID, &j.NotBefore, &j.HeartbeatAt, &j.StartedAt, &j.FinishedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *pgSyncJobRepository) Create(ctx context.Context, job *model.SyncJob) error {
	query := `INSERT INTO sync_jobs (id, account_id, trigger, status, warning, not_before)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, job.ID, job.AccountID, job.Trigger, job.Status, job.Warning, job.NotBefore).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgSyncJobRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSyncJobRepository) FindByID(ctx context.Context, id string) (*model.SyncJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSyncJobRepository.FindByID: %w", err)
	}
	return j, nil
}

func (r *pgSyncJobRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgSyncJobRepository.ListByAccount query: %w", err)
	}
	defer rows.Close()
	jobs := []model.SyncJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("pgSyncJobRepository.ListByAccount scan: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSyncJobRepository.ListByAccount rows.Err: %w", err)
	}
	return jobs, nil
}

func (r *pgSyncJobRepository) FindActive(ctx context.Context, accountID string) (*model.SyncJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE account_id = $1 AND status IN ('pending', 'running')
		 ORDER BY created_at DESC LIMIT 1`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSyncJobRepository.FindActive: %w", err)
	}
	return j, nil
}

func (r *pgSyncJobRepository) Claim(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_jobs
	          SET status = 'running', worker_id = $2, started_at = $3, heartbeat_at = $3, updated_at = $3
	          WHERE id = $1 AND status = 'pending'`, id, workerID, now)
	if err != nil {
		return false, fmt.Errorf("pgSyncJobRepository.Claim: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *pgSyncJobRepository) Heartbeat(ctx context.Context, id string, p model.JobProgress, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_jobs
	          SET heartbeat_at = $2, processed = $3, new_submissions = $4, new_problems = $5,
	              skipped = $6, errors = $7, updated_at = $2
	          WHERE id = $1 AND status = 'running'`,
		id, now, p.Processed, p.NewSubmissions, p.NewProblems, p.Skipped, p.Errors)
	if err != nil {
		return fmt.Errorf("pgSyncJobRepository.Heartbeat: %w", err)
	}
	return nil
}

func (r *pgSyncJobRepository) Finish(ctx context.Context, id, status string, p model.JobProgress, lastError *string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_jobs
	          SET status = $2, processed = $3, new_submissions = $4, new_problems = $5, skipped = $6, errors = $7,
	              last_error = $8, finished_at = $9, updated_at = $9
	          WHERE id = $1 AND status IN ('pending', 'running')`,
		id, status, p.Processed, p.NewSubmissions, p.NewProblems, p.Skipped, p.Errors, lastError, now)
	if err != nil {
		return fmt.Errorf("pgSyncJobRepository.Finish: %w", err)
	}
	return nil
}

func (r *pgSyncJobRepository) CancelPending(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_jobs
	          SET status = 'cancelled', finished_at = $2, updated_at = $2
	          WHERE id = $1 AND status = 'pending'`, id, now)
	if err != nil {
		return false, fmt.Errorf("pgSyncJobRepository.CancelPending: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *pgSyncJobRepository) SweepStale(ctx context.Context, before, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `UPDATE sync_jobs
	          SET status = 'failed', last_error = 'worker stopped sending heartbeats', finished_at = $2, updated_at = $2
	          WHERE status = 'running' AND heartbeat_at < $1
	          RETURNING id`, before, now)
	if err != nil {
		return nil, fmt.Errorf("pgSyncJobRepository.SweepStale: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgSyncJobRepository.SweepStale scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
