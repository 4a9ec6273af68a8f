package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linea-events/linea-auth/internal/domain"
)

// SessionMirror is the best-effort durable copy of the session cache.
// It exists so a cache flush does not log every user out; the cache
// stays authoritative for liveness.
type SessionMirror interface {
	Save(ctx context.Context, s *domain.Session) error
	// Find returns only non-expired rows; domain.ErrSessionNotFound otherwise.
	Find(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessionMirror struct {
	pool *pgxpool.Pool
}

func NewSessionMirror(pool *pgxpool.Pool) SessionMirror {
	return &sessionMirror{pool: pool}
}

func (m *sessionMirror) Save(ctx context.Context, s *domain.Session) error {
	const q = `
		INSERT INTO session_mirror (token, user_id, email, role, display_name, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := m.pool.Exec(ctx, q, s.Token, s.UserID, s.Email, string(s.Role), s.DisplayName, s.CreatedAt, s.ExpiresAt)
	return err
}

func (m *sessionMirror) Find(ctx context.Context, token string) (*domain.Session, error) {
	const q = `
		SELECT user_id, email, role, display_name, created_at, expires_at
		FROM session_mirror
		WHERE token = $1
		  AND expires_at > now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s := &domain.Session{Token: token}
	var role string
	err := m.pool.QueryRow(ctx, q, token).Scan(
		&s.UserID, &s.Email, &role, &s.DisplayName, &s.CreatedAt, &s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Role = domain.Role(role)
	return s, nil
}

func (m *sessionMirror) Delete(ctx context.Context, token string) error {
	const q = `DELETE FROM session_mirror WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := m.pool.Exec(ctx, q, token)
	return err
}

func (m *sessionMirror) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM session_mirror WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := m.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
