package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linea-events/linea-auth/internal/domain"
)

// TokenRepository is the sole source of truth for whether a
// verification token has been used. Consume must be atomic: two
// concurrent calls for the same value may not both succeed.
type TokenRepository interface {
	Create(ctx context.Context, t *domain.VerificationToken) error
	// ExpireLive force-expires every live token for (email, purpose),
	// maintaining the at-most-one-live-token invariant on re-issuance.
	ExpireLive(ctx context.Context, email string, purpose domain.TokenPurpose) (int64, error)
	// Consume marks the token used and returns it. Failures are
	// classified as domain.ErrTokenNotFound, ErrTokenPurpose,
	// ErrTokenConsumed or ErrTokenExpired.
	Consume(ctx context.Context, value string, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

func (r *tokenRepository) Create(ctx context.Context, t *domain.VerificationToken) error {
	const q = `
		INSERT INTO verification_tokens (token, email, purpose, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q, t.Token, t.Email, string(t.Purpose), t.IssuedAt, t.ExpiresAt).Scan(&t.ID)
}

func (r *tokenRepository) ExpireLive(ctx context.Context, email string, purpose domain.TokenPurpose) (int64, error) {
	const q = `
		UPDATE verification_tokens
		SET expires_at = now()
		WHERE email = $1
		  AND purpose = $2
		  AND consumed_at IS NULL
		  AND expires_at > now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, email, string(purpose))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *tokenRepository) Consume(ctx context.Context, value string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	// The single conditional update is the correctness core: exactly one
	// concurrent caller observes a row to update, everyone else falls
	// through to classification.
	const q = `
		UPDATE verification_tokens
		SET consumed_at = now()
		WHERE token = $1
		  AND purpose = $2
		  AND consumed_at IS NULL
		  AND expires_at > now()
		RETURNING id, email, issued_at, expires_at, consumed_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t := &domain.VerificationToken{Token: value, Purpose: purpose}
	err := r.pool.QueryRow(ctx, q, value, string(purpose)).Scan(
		&t.ID, &t.Email, &t.IssuedAt, &t.ExpiresAt, &t.ConsumedAt,
	)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return nil, r.classifyFailure(ctx, value, purpose)
}

// classifyFailure is read-only: the atomic update already lost, this
// only decides which error to report.
func (r *tokenRepository) classifyFailure(ctx context.Context, value string, purpose domain.TokenPurpose) error {
	const q = `
		SELECT purpose, expires_at, consumed_at
		FROM verification_tokens
		WHERE token = $1`

	var (
		storedPurpose string
		expiresAt     time.Time
		consumedAt    *time.Time
	)
	err := r.pool.QueryRow(ctx, q, value).Scan(&storedPurpose, &expiresAt, &consumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTokenNotFound
	}
	if err != nil {
		return err
	}

	switch {
	case storedPurpose != string(purpose):
		return domain.ErrTokenPurpose
	case consumedAt != nil:
		return domain.ErrTokenConsumed
	default:
		return domain.ErrTokenExpired
	}
}

func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM verification_tokens
		WHERE (consumed_at IS NOT NULL AND consumed_at < now() - interval '30 days')
		   OR (consumed_at IS NULL AND expires_at < now() - interval '7 days')`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
