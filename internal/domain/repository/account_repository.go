package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"oj_sync/internal/common"
	"oj_sync/internal/common/security"
	"oj_sync/internal/domain/model"
)

type PlatformAccountRepository interface {
	Create(ctx context.Context, a *model.PlatformAccount) error
	FindByID(ctx context.Context, id string) (*model.PlatformAccount, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.PlatformAccount, error)
	ListActive(ctx context.Context) ([]model.PlatformAccount, error)
	Delete(ctx context.Context, id string) error
	// MarkSyncSuccess stores the new cursor and resets health.
	MarkSyncSuccess(ctx context.Context, tx *sql.Tx, id, cursor string, at time.Time) error
	// RecordSyncFailure bumps the failure counter and deactivates the account
	// once it reaches threshold. It returns the new count and active flag.
	RecordSyncFailure(ctx context.Context, id, message string, threshold int) (failures int, active bool, err error)
	Reactivate(ctx context.Context, id string) error
}

type pgPlatformAccountRepository struct {
	db     *sql.DB
	sealer *security.Sealer
}

// NewPgPlatformAccountRepository seals cookies and passwords with sealer.
func NewPgPlatformAccountRepository(db *sql.DB, sealer *security.Sealer) PlatformAccountRepository {
	return &pgPlatformAccountRepository{db: db, sealer: sealer}
}

func (r *pgPlatformAccountRepository) Create(ctx context.Context, a *model.PlatformAccount) error {
	cookie, err := r.sealer.Seal(a.Cookie)
	if err != nil {
		return fmt.Errorf("pgPlatformAccountRepository.Create seal cookie: %w", err)
	}
	password, err := r.sealer.Seal(a.Password)
	if err != nil {
		return fmt.Errorf("pgPlatformAccountRepository.Create seal password: %w", err)
	}
	query := `INSERT INTO platform_accounts (id, owner_id, platform, external_user_id, cookie_sealed, password_sealed, is_active)
	          VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), TRUE)
	          RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, a.ID, a.OwnerID, a.Platform, a.ExternalUserID, cookie, password).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s account %q is already linked: %w", a.Platform, a.ExternalUserID, common.ErrConflict)
		}
		return fmt.Errorf("pgPlatformAccountRepository.Create: %w", err)
	}
	a.IsActive = true
	a.HasCookie, a.HasPassword = a.Cookie != "", a.Password != ""
	return nil
}

const accountColumns = `id, owner_id, platform, external_user_id, COALESCE(cookie_sealed, ''), COALESCE(password_sealed, ''),
	sync_cursor, last_sync_at, last_sync_error, consecutive_failures, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *pgPlatformAccountRepository) scan(row rowScanner) (*model.PlatformAccount, error) {
	var a model.PlatformAccount
	var cookie, password string
	err := row.Scan(&a.ID, &a.OwnerID, &a.Platform, &a.ExternalUserID, &cookie, &password,
		&a.SyncCursor, &a.LastSyncAt, &a.LastSyncError, &a.ConsecutiveFailures, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Cookie, err = r.sealer.Open(cookie); err != nil {
		return nil, fmt.Errorf("account %s cookie: %w", a.ID, err)
	}
	if a.Password, err = r.sealer.Open(password); err != nil {
		return nil, fmt.Errorf("account %s password: %w", a.ID, err)
	}
	a.HasCookie, a.HasPassword = a.Cookie != "", a.Password != ""
	return &a, nil
}

func (r *pgPlatformAccountRepository) FindByID(ctx context.Context, id string) (*model.PlatformAccount, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM platform_accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgPlatformAccountRepository.FindByID: %w", err)
	}
	return a, nil
}

func (r *pgPlatformAccountRepository) list(ctx context.Context, method, query string, args ...any) ([]model.PlatformAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgPlatformAccountRepository.%s query: %w", method, err)
	}
	defer rows.Close()

	accounts := []model.PlatformAccount{}
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("pgPlatformAccountRepository.%s scan: %w", method, err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgPlatformAccountRepository.%s rows.Err: %w", method, err)
	}
	return accounts, nil
}

func (r *pgPlatformAccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.PlatformAccount, error) {
	return r.list(ctx, "ListByOwner",
		`SELECT `+accountColumns+` FROM platform_accounts WHERE owner_id = $1 ORDER BY created_at`, ownerID)
}

func (r *pgPlatformAccountRepository) ListActive(ctx context.Context) ([]model.PlatformAccount, error) {
	return r.list(ctx, "ListActive",
		`SELECT `+accountColumns+` FROM platform_accounts WHERE is_active ORDER BY last_sync_at NULLS FIRST`)
}

func (r *pgPlatformAccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM platform_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgPlatformAccountRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgPlatformAccountRepository) MarkSyncSuccess(ctx context.Context, tx *sql.Tx, id, cursor string, at time.Time) error {
	query := `UPDATE platform_accounts
	          SET sync_cursor = NULLIF($2, ''), last_sync_at = $3, last_sync_error = NULL,
	              consecutive_failures = 0, updated_at = now()
	          WHERE id = $1`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, id, cursor, at); err != nil {
		return fmt.Errorf("pgPlatformAccountRepository.MarkSyncSuccess: %w", err)
	}
	return nil
}

func (r *pgPlatformAccountRepository) RecordSyncFailure(ctx context.Context, id, message string, threshold int) (int, bool, error) {
	query := `UPDATE platform_accounts
	          SET consecutive_failures = consecutive_failures + 1,
	              last_sync_error = $2,
	              is_active = is_active AND consecutive_failures + 1 < $3,
	              updated_at = now()
	          WHERE id = $1
	          RETURNING consecutive_failures, is_active`
	var failures int
	var active bool
	if err := r.db.QueryRowContext(ctx, query, id, message, threshold).Scan(&failures, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, common.ErrNotFound
		}
		return 0, false, fmt.Errorf("pgPlatformAccountRepository.RecordSyncFailure: %w", err)
	}
	return failures, active, nil
}

func (r *pgPlatformAccountRepository) Reactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE platform_accounts
	          SET is_active = TRUE, consecutive_failures = 0, last_sync_error = NULL, updated_at = now()
	          WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgPlatformAccountRepository.Reactivate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}
