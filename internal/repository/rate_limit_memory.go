package repository

import (
	"context"
	"sync"
	"time"
)

type memoryRateLimitRepository struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewMemoryRateLimitRepository(now func() time.Time) RateLimitRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryRateLimitRepository{
		attempts: make(map[string][]time.Time),
		now:      now,
	}
}

func (r *memoryRateLimitRepository) Allow(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-window)

	kept := r.attempts[key][:0]
	for _, at := range r.attempts[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	r.attempts[key] = kept

	return len(kept) <= max, nil
}

func (r *memoryRateLimitRepository) CleanupExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-time.Hour)
	var removed int64
	for key, attempts := range r.attempts {
		if len(attempts) > 0 && attempts[len(attempts)-1].Before(cutoff) {
			delete(r.attempts, key)
			removed++
		}
	}
	return removed, nil
}
