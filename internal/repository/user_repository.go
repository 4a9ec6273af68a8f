package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linea-events/linea-auth/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the identity collaborator: token verification
// upserts the subject here, and session resolution re-validates that
// the user is still active.
type UserRepository interface {
	// UpsertByEmail creates the user on first verification. An existing
	// user keeps their role except for the VISITOR → OWNER promotion on
	// an owner invitation; display name is only overwritten when the
	// caller supplies one.
	UpsertByEmail(ctx context.Context, email, displayName string, role domain.Role) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) UpsertByEmail(ctx context.Context, email, displayName string, role domain.Role) (*domain.User, error) {
	const q = `
		INSERT INTO users (email, display_name, role, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (email) DO UPDATE SET
			display_name = COALESCE(NULLIF($2, ''), users.display_name),
			role = CASE
				WHEN users.role = 'VISITOR' AND $3 = 'OWNER' THEN 'OWNER'
				ELSE users.role
			END,
			updated_at = now()
		RETURNING id, email, display_name, role, is_active, created_at, updated_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanUser(r.pool.QueryRow(ctx, q, email, displayName, string(role)))
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `
		SELECT id, email, display_name, role, is_active, created_at, updated_at
		FROM users
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `
		SELECT id, email, display_name, role, is_active, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *userRepository) scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return u, nil
}
