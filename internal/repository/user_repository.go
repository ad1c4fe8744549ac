package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk-backend/internal/domain"
)

// UserRepository is the user directory: lookups exclude soft-deleted rows,
// so an unknown or deleted id surfaces as pgx.ErrNoRows.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
	ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, first_name, last_name, role, active,
        created_at, updated_at, deleted_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (username, email, password_hash, first_name, last_name, role, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Active,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET username=$1, email=$2, password_hash=$3, first_name=$4, last_name=$5,
            role=$6, active=$7, deleted_at=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Active,
		user.DeletedAt,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `WHERE id=$1 AND deleted_at IS NULL`, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.fetchSingle(ctx, `WHERE username=$1 AND deleted_at IS NULL`, username)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `WHERE email=$1 AND deleted_at IS NULL`, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL ORDER BY created_at LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role=$1 AND deleted_at IS NULL ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE users SET deleted_at=$1, active=FALSE, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, deletedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&user.FirstName,
			&user.LastName,
			&user.Role,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
