package repository

import (
	"context"
	"sync"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
)

type memorySessionCache struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewMemorySessionCache(now func() time.Time) SessionCache {
	if now == nil {
		now = time.Now
	}
	return &memorySessionCache{
		sessions: make(map[string]*domain.Session),
		now:      now,
	}
}

func (c *memorySessionCache) Set(_ context.Context, s *domain.Session, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *s
	c.sessions[s.Token] = &stored
	return nil
}

func (c *memorySessionCache) Get(_ context.Context, token string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.IsExpired(c.now()) {
		delete(c.sessions, token)
		return nil, domain.ErrSessionNotFound
	}

	found := *s
	return &found, nil
}

func (c *memorySessionCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, token)
	return nil
}

// noopSessionMirror backs memory mode, where there is no durable store
// to mirror into. Find always misses so the cache stays the single
// source of truth.
type noopSessionMirror struct{}

func NewNoopSessionMirror() SessionMirror { return noopSessionMirror{} }

func (noopSessionMirror) Save(context.Context, *domain.Session) error { return nil }

func (noopSessionMirror) Find(context.Context, string) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (noopSessionMirror) Delete(context.Context, string) error { return nil }

func (noopSessionMirror) DeleteExpired(context.Context) (int64, error) { return 0, nil }
