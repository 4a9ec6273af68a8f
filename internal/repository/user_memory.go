package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
)

type memoryUserRepository struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*domain.User
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemoryUserRepository(now func() time.Time) UserRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryUserRepository{
		nextID:  1,
		byID:    make(map[int64]*domain.User),
		byEmail: make(map[string]int64),
		now:     now,
	}
}

func (r *memoryUserRepository) UpsertByEmail(_ context.Context, email, displayName string, role domain.Role) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(email)
	now := r.now()

	if id, ok := r.byEmail[key]; ok {
		u := r.byID[id]
		if displayName != "" {
			u.DisplayName = displayName
		}
		if u.Role == domain.RoleVisitor && role == domain.RoleOwner {
			u.Role = domain.RoleOwner
		}
		u.UpdatedAt = now
		found := *u
		return &found, nil
	}

	u := &domain.User{
		ID:          r.nextID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.nextID++
	r.byID[u.ID] = u
	r.byEmail[key] = u.ID

	created := *u
	return &created, nil
}

func (r *memoryUserRepository) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	found := *u
	return &found, nil
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	found := *r.byID[id]
	return &found, nil
}
