package repository

import (
	"context"
	"database/sql"
	"fmt"

	"oj_sync/internal/domain/model"
)

type SubmissionRepository interface {
	Exists(ctx context.Context, tx *sql.Tx, platform, recordID string) (bool, error)
	// Insert is a no-op returning false if (platform, record) is already stored.
	Insert(ctx context.Context, tx *sql.Tx, s *model.Submission) (bool, error)
	SetSourceCode(ctx context.Context, id, code string) error
	// SolvedProblemIDs lists platform problem ids the account has an AC for.
	SolvedProblemIDs(ctx context.Context, tx *sql.Tx, accountID string) (map[string]bool, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) Exists(ctx context.Context, tx *sql.Tx, platform, recordID string) (bool, error) {
	var exists bool
	err := pick(r.db, tx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE platform = $1 AND record_id = $2)`,
		platform, recordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.Exists: %w", err)
	}
	return exists, nil
}

func (r *pgSubmissionRepository) Insert(ctx context.Context, tx *sql.Tx, s *model.Submission) (bool, error) {
	query := `INSERT INTO submissions (id, account_id, platform, problem_ref, record_id, status, score, language,
	                                   time_ms, memory_kb, source_code, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          ON CONFLICT (platform, record_id) DO NOTHING`
	res, err := pick(r.db, tx).ExecContext(ctx, query,
		s.ID, s.AccountID, s.Platform, s.ProblemRef, s.RecordID, string(s.Status), s.Score, s.Language,
		s.TimeMs, s.MemoryKb, s.SourceCode, s.SubmittedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.Insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.Insert rows: %w", err)
	}
	return n == 1, nil
}

func (r *pgSubmissionRepository) SetSourceCode(ctx context.Context, id, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET source_code = $2 WHERE id = $1 AND source_code IS NULL`, id, code)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.SetSourceCode: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) SolvedProblemIDs(ctx context.Context, tx *sql.Tx, accountID string) (map[string]bool, error) {
	query := `SELECT DISTINCT p.problem_id
	          FROM submissions s JOIN problems p ON p.id = s.problem_ref
	          WHERE s.account_id = $1 AND s.status = $2`
	rows, err := pick(r.db, tx).QueryContext(ctx, query, accountID, string(model.StatusAC))
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.SolvedProblemIDs query: %w", err)
	}
	defer rows.Close()
	solved := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.SolvedProblemIDs scan: %w", err)
		}
		solved[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.SolvedProblemIDs rows.Err: %w", err)
	}
	return solved, nil
}
