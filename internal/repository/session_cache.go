package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linea-events/linea-auth/internal/domain"
)

// SessionCache is the primary session store. It owns liveness: a
// session absent here (and absent from the durable mirror) is dead.
type SessionCache interface {
	Set(ctx context.Context, s *domain.Session, ttl time.Duration) error
	// Get returns domain.ErrSessionNotFound for missing or expired
	// entries; any other error means the cache itself is unreachable.
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
}

const sessionKeyPrefix = "session:"

type redisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) SessionCache {
	return &redisSessionCache{client: client}
}

func (c *redisSessionCache) Set(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(cachedSession{
		UserID:      s.UserID,
		Email:       s.Email,
		Role:        string(s.Role),
		DisplayName: s.DisplayName,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return c.client.Set(ctx, sessionKeyPrefix+s.Token, payload, ttl).Err()
}

func (c *redisSessionCache) Get(ctx context.Context, token string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	payload, err := c.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var cached cachedSession
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &domain.Session{
		Token:       token,
		UserID:      cached.UserID,
		Email:       cached.Email,
		Role:        domain.Role(cached.Role),
		DisplayName: cached.DisplayName,
		CreatedAt:   cached.CreatedAt,
		ExpiresAt:   cached.ExpiresAt,
	}, nil
}

func (c *redisSessionCache) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// DEL of a missing key is a no-op, which keeps revoke idempotent.
	return c.client.Del(ctx, sessionKeyPrefix+token).Err()
}

// cachedSession is the wire form stored in redis. The token is the key,
// never part of the value.
type cachedSession struct {
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
