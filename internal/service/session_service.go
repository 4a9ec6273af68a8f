package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/token"
	"github.com/linea-events/linea-auth/pkg/events"
	"github.com/linea-events/linea-auth/pkg/logger"
)

// SessionService owns the session lifecycle. The redis cache is the
// source of truth for liveness; the durable mirror only prevents a
// cache flush from logging every user out.
type SessionService interface {
	Create(ctx context.Context, user *domain.User) (*domain.Session, error)
	// Resolve maps an opaque session token to an identity snapshot.
	// Unresolvable tokens fail with domain.ErrSessionNotFound; backing
	// store outages degrade to the cached snapshot instead of failing.
	Resolve(ctx context.Context, sessionToken string) (*domain.Session, error)
	// Revoke is idempotent: revoking an unknown token is a success.
	Revoke(ctx context.Context, sessionToken string) error
}

type sessionService struct {
	cache     repository.SessionCache
	mirror    repository.SessionMirror
	users     repository.UserRepository
	publisher events.Publisher
	ttl       time.Duration
	// demoMode skips the per-resolve user re-validation; memory mode has
	// no durable user store worth consulting.
	demoMode bool

	now      func() time.Time
	newToken func() string
}

func NewSessionService(
	cache repository.SessionCache,
	mirror repository.SessionMirror,
	users repository.UserRepository,
	publisher events.Publisher,
	ttl time.Duration,
	demoMode bool,
) SessionService {
	return &sessionService{
		cache:     cache,
		mirror:    mirror,
		users:     users,
		publisher: publisher,
		ttl:       ttl,
		demoMode:  demoMode,
		now:       time.Now,
		newToken:  func() string { return token.New(token.Session) },
	}
}

func (s *sessionService) Create(ctx context.Context, user *domain.User) (*domain.Session, error) {
	now := s.now()
	sess := &domain.Session{
		Token:       s.newToken(),
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		DisplayName: user.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.cache.Set(ctx, sess, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	// Best-effort durable copy; the cache entry is already live.
	if err := s.mirror.Save(ctx, sess); err != nil {
		logger.WarnContext(ctx, "Failed to mirror session to durable store", "error", err)
	}

	if err := s.publisher.Publish(ctx, events.SessionCreated, events.SessionCreatedEvent{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Role:      string(sess.Role),
		CreatedAt: sess.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish session created event", "error", err)
	}

	return sess, nil
}

func (s *sessionService) Resolve(ctx context.Context, sessionToken string) (*domain.Session, error) {
	if sessionToken == "" {
		return nil, domain.ErrSessionNotFound
	}

	sess, err := s.cache.Get(ctx, sessionToken)
	switch {
	case err == nil:
		return s.validateCached(ctx, sess)
	case errors.Is(err, domain.ErrSessionNotFound):
		return s.resolveFromMirror(ctx, sessionToken)
	default:
		// Cache outage. The durable mirror is the only remaining chance
		// to keep an already-logged-in user authenticated.
		logger.DegradedContext(ctx, "session_cache", "Session cache unavailable, consulting durable mirror", "error", err)
		return s.resolveFromMirror(ctx, sessionToken)
	}
}

// validateCached re-checks that the referenced user still exists and is
// active. When the user store is unreachable the stale-but-cached
// snapshot wins over a hard authentication failure.
func (s *sessionService) validateCached(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	if sess.IsExpired(s.now()) {
		_ = s.cache.Delete(ctx, sess.Token)
		_ = s.mirror.Delete(ctx, sess.Token)
		return nil, domain.ErrSessionNotFound
	}

	if s.demoMode {
		return sess, nil
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.drop(ctx, sess.Token)
			return nil, domain.ErrSessionNotFound
		}
		logger.DegradedContext(ctx, "user_store", "User lookup unavailable, returning cached identity snapshot", "error", err)
		return sess, nil
	}
	if !user.IsActive {
		s.drop(ctx, sess.Token)
		return nil, domain.ErrSessionNotFound
	}

	return sess, nil
}

// drop removes a session whose user no longer qualifies for it.
func (s *sessionService) drop(ctx context.Context, sessionToken string) {
	if err := s.cache.Delete(ctx, sessionToken); err != nil {
		logger.WarnContext(ctx, "Failed to drop invalidated session from cache", "error", err)
	}
	if err := s.mirror.Delete(ctx, sessionToken); err != nil {
		logger.WarnContext(ctx, "Failed to drop invalidated session mirror row", "error", err)
	}
}

// resolveFromMirror only matters after a cache flush or outage: a
// non-expired durable row is treated as authoritative and rehydrated
// into the cache.
func (s *sessionService) resolveFromMirror(ctx context.Context, sessionToken string) (*domain.Session, error) {
	sess, err := s.mirror.Find(ctx, sessionToken)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			logger.DegradedContext(ctx, "session_mirror", "Session mirror unavailable during resolve", "error", err)
		}
		return nil, domain.ErrSessionNotFound
	}

	if remaining := sess.ExpiresAt.Sub(s.now()); remaining > 0 {
		if err := s.cache.Set(ctx, sess, remaining); err != nil {
			logger.WarnContext(ctx, "Failed to rehydrate session cache from mirror", "error", err)
		}
	}

	return sess, nil
}

func (s *sessionService) Revoke(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	// Look up first so the revocation event carries the user; a miss
	// still proceeds with the deletes.
	var userID int64
	if sess, err := s.cache.Get(ctx, sessionToken); err == nil {
		userID = sess.UserID
	}

	if err := s.cache.Delete(ctx, sessionToken); err != nil {
		logger.DegradedContext(ctx, "session_cache", "Failed to delete session from cache", "error", err)
	}
	if err := s.mirror.Delete(ctx, sessionToken); err != nil {
		logger.WarnContext(ctx, "Failed to delete session mirror row", "error", err)
	}

	if userID != 0 {
		if err := s.publisher.Publish(ctx, events.SessionRevoked, events.SessionRevokedEvent{
			UserID:    userID,
			RevokedAt: s.now(),
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish session revoked event", "error", err)
		}
	}

	return nil
}
