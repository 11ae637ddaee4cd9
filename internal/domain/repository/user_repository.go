package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, username, email, hashed_password, role)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.Email, user.HashedPassword, user.Role).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, hashed_password, role, created_at, updated_at`

func (r *pgUserRepository) findOne(ctx context.Context, method, where string, arg any) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.%s: %w", method, err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "FindByEmail", "email", email)
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "FindByUsername", "username", username)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "FindByID", "id", id)
}
