package repository

import (
	"context"
	"sync"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
)

// memoryTokenRepository keeps the same observable semantics as the
// postgres repository, including single-winner consumption, behind one
// mutex. Used in memory mode and in tests; the clock is injectable.
type memoryTokenRepository struct {
	mu     sync.Mutex
	nextID int64
	tokens map[string]*domain.VerificationToken
	now    func() time.Time
}

func NewMemoryTokenRepository(now func() time.Time) TokenRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryTokenRepository{
		nextID: 1,
		tokens: make(map[string]*domain.VerificationToken),
		now:    now,
	}
}

func (r *memoryTokenRepository) Create(_ context.Context, t *domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.ID = r.nextID
	r.nextID++

	stored := *t
	r.tokens[t.Token] = &stored
	return nil
}

func (r *memoryTokenRepository) ExpireLive(_ context.Context, email string, purpose domain.TokenPurpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var expired int64
	for _, t := range r.tokens {
		if t.Email == email && t.Purpose == purpose && t.ConsumedAt == nil && t.ExpiresAt.After(now) {
			t.ExpiresAt = now
			expired++
		}
	}
	return expired, nil
}

func (r *memoryTokenRepository) Consume(_ context.Context, value string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[value]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	if t.Purpose != purpose {
		return nil, domain.ErrTokenPurpose
	}
	if t.ConsumedAt != nil {
		return nil, domain.ErrTokenConsumed
	}
	now := r.now()
	if !t.ExpiresAt.After(now) {
		return nil, domain.ErrTokenExpired
	}

	t.ConsumedAt = &now
	consumed := *t
	return &consumed, nil
}

func (r *memoryTokenRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var deleted int64
	for value, t := range r.tokens {
		dead := (t.ConsumedAt != nil && t.ConsumedAt.Before(now.Add(-30*24*time.Hour))) ||
			(t.ConsumedAt == nil && t.ExpiresAt.Before(now.Add(-7*24*time.Hour)))
		if dead {
			delete(r.tokens, value)
			deleted++
		}
	}
	return deleted, nil
}
