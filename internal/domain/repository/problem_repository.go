package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
)

type ProblemRepository interface {
	FindByPlatformID(ctx context.Context, tx *sql.Tx, platform, problemID string) (*model.Problem, error)
	// Create inserts p unless (platform, problem_id) exists. created is false
	// when another run got there first.
	Create(ctx context.Context, tx *sql.Tx, p *model.Problem) (created bool, err error)
	// Backfill writes the non-nil fields of c, and only into columns that are
	// still empty.
	Backfill(ctx context.Context, tx *sql.Tx, id string, c model.ProblemContent) error
	AddTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error
	// ProblemIDs lists the platform problem ids already stored.
	ProblemIDs(ctx context.Context, tx *sql.Tx, platform string) (map[string]bool, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) FindByPlatformID(ctx context.Context, tx *sql.Tx, platform, problemID string) (*model.Problem, error) {
	query := `SELECT id, platform, problem_id, title, difficulty, difficulty_raw, url, source,
	                 description, input_desc, output_desc, examples, hint, platform_tags, created_at, updated_at
	          FROM problems WHERE platform = $1 AND problem_id = $2`
	p := &model.Problem{}
	var tags []byte
	err := pick(r.db, tx).QueryRowContext(ctx, query, platform, problemID).Scan(
		&p.ID, &p.Platform, &p.ProblemID, &p.Title, &p.Difficulty, &p.DifficultyRaw, &p.URL, &p.Source,
		&p.Description, &p.InputDesc, &p.OutputDesc, &p.Examples, &p.Hint, &tags, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.FindByPlatformID: %w", err)
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.PlatformTags); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.FindByPlatformID platform_tags: %w", err)
		}
	}
	return p, nil
}

func (r *pgProblemRepository) Create(ctx context.Context, tx *sql.Tx, p *model.Problem) (bool, error) {
	platformTags := p.PlatformTags
	if platformTags == nil {
		platformTags = []string{}
	}
	tags, err := json.Marshal(platformTags)
	if err != nil {
		return false, fmt.Errorf("pgProblemRepository.Create marshal tags: %w", err)
	}
	query := `INSERT INTO problems (id, platform, problem_id, title, difficulty, difficulty_raw, url, source,
	                                description, input_desc, output_desc, examples, hint, platform_tags)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb)
	          ON CONFLICT (platform, problem_id) DO NOTHING`
	res, err := pick(r.db, tx).ExecContext(ctx, query,
		p.ID, p.Platform, p.ProblemID, p.Title, p.Difficulty, p.DifficultyRaw, p.URL, p.Source,
		p.Description, p.InputDesc, p.OutputDesc, p.Examples, p.Hint, string(tags))
	if err != nil {
		return false, fmt.Errorf("pgProblemRepository.Create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgProblemRepository.Create rows: %w", err)
	}
	return n == 1, nil
}

func (r *pgProblemRepository) Backfill(ctx context.Context, tx *sql.Tx, id string, c model.ProblemContent) error {
	query := `UPDATE problems SET
	            title       = CASE WHEN title = '' THEN COALESCE($2, title) ELSE title END,
	            description = CASE WHEN COALESCE(description, '') = '' THEN COALESCE($3, description) ELSE description END,
	            input_desc  = CASE WHEN COALESCE(input_desc, '') = '' THEN COALESCE($4, input_desc) ELSE input_desc END,
	            output_desc = CASE WHEN COALESCE(output_desc, '') = '' THEN COALESCE($5, output_desc) ELSE output_desc END,
	            examples    = CASE WHEN COALESCE(examples, '') = '' THEN COALESCE($6, examples) ELSE examples END,
	            hint        = CASE WHEN COALESCE(hint, '') = '' THEN COALESCE($7, hint) ELSE hint END,
	            updated_at  = now()
	          WHERE id = $1`
	_, err := pick(r.db, tx).ExecContext(ctx, query, id, c.Title, c.Description, c.InputDesc, c.OutputDesc, c.Examples, c.Hint)
	if err != nil {
		return fmt.Errorf("pgProblemRepository.Backfill: %w", err)
	}
	return nil
}

func (r *pgProblemRepository) AddTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	for _, tag := range tags {
		_, err := pick(r.db, tx).ExecContext(ctx,
			`INSERT INTO problem_tags (problem_ref, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, tag)
		if err != nil {
			return fmt.Errorf("pgProblemRepository.AddTags %s: %w", tag, err)
		}
	}
	return nil
}

func (r *pgProblemRepository) ProblemIDs(ctx context.Context, tx *sql.Tx, platform string) (map[string]bool, error) {
	rows, err := pick(r.db, tx).QueryContext(ctx, `SELECT problem_id FROM problems WHERE platform = $1`, platform)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ProblemIDs query: %w", err)
	}
	defer rows.Close()
	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.ProblemIDs scan: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ProblemIDs rows.Err: %w", err)
	}
	return ids, nil
}
