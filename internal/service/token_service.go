package service

import (
	"context"
	"fmt"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/mailer"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/token"
	"github.com/linea-events/linea-auth/pkg/config"
	"github.com/linea-events/linea-auth/pkg/events"
	"github.com/linea-events/linea-auth/pkg/logger"
)

// TokenService issues and verifies single-use verification tokens.
type TokenService interface {
	// Issue creates a fresh token for (email, purpose), force-expiring
	// any prior live token for the pair, and emails the resulting link.
	// A failed email send does not fail issuance: the subject can always
	// re-request, and re-issuance invalidates the unsent link anyway.
	Issue(ctx context.Context, email string, purpose domain.TokenPurpose) (*domain.VerificationToken, string, error)
	// Verify atomically consumes the token and returns the subject email.
	Verify(ctx context.Context, value string, purpose domain.TokenPurpose) (string, error)
}

type tokenService struct {
	tokens     repository.TokenRepository
	rateLimits repository.RateLimitRepository
	mailer     mailer.Service
	publisher  events.Publisher
	config     *config.Config

	now      func() time.Time
	newToken func() string
}

func NewTokenService(
	tokens repository.TokenRepository,
	rateLimits repository.RateLimitRepository,
	mail mailer.Service,
	publisher events.Publisher,
	cfg *config.Config,
) TokenService {
	return &tokenService{
		tokens:     tokens,
		rateLimits: rateLimits,
		mailer:     mail,
		publisher:  publisher,
		config:     cfg,
		now:        time.Now,
		newToken:   func() string { return token.New(token.Verification) },
	}
}

func (s *tokenService) Issue(ctx context.Context, email string, purpose domain.TokenPurpose) (*domain.VerificationToken, string, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return nil, "", domain.ErrInvalidEmail
	}
	if !domain.IsValidPurpose(purpose) {
		return nil, "", fmt.Errorf("unknown token purpose %q", purpose)
	}

	// Check and record the attempt in one call; the limiter fails open
	// when its counting store is down.
	key := string(purpose) + ":" + email
	allowed, err := s.rateLimits.Allow(ctx, key, s.config.Auth.RateLimitMax, s.config.Auth.RateLimitWindow)
	if err != nil {
		logger.DegradedContext(ctx, "rate_limiter", "Rate limit unavailable, allowing issuance", "error", err)
		allowed = true
	}
	if !allowed {
		return nil, "", domain.ErrRateLimited
	}

	// Re-issuance invalidates every prior live token for the pair before
	// the new one becomes visible. At most one live token per
	// (email, purpose) at any point.
	if _, err := s.tokens.ExpireLive(ctx, email, purpose); err != nil {
		return nil, "", fmt.Errorf("failed to expire prior tokens: %w", err)
	}

	now := s.now()
	t := &domain.VerificationToken{
		Token:     s.newToken(),
		Email:     email,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttlFor(purpose)),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("failed to create verification token: %w", err)
	}

	link := s.buildLink(t)
	s.sendEmail(ctx, t, link)

	if err := s.publisher.Publish(ctx, events.TokenIssued, events.TokenIssuedEvent{
		Email:    t.Email,
		Purpose:  string(t.Purpose),
		IssuedAt: t.IssuedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish token issued event", "error", err)
	}

	return t, link, nil
}

func (s *tokenService) Verify(ctx context.Context, value string, purpose domain.TokenPurpose) (string, error) {
	if value == "" {
		return "", domain.ErrTokenNotFound
	}

	t, err := s.tokens.Consume(ctx, value, purpose)
	if err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "Verification token consumed",
		"token", token.Redact(value),
		"purpose", string(purpose),
	)
	return t.Email, nil
}

func (s *tokenService) ttlFor(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.PurposeOwnerInvitation {
		return s.config.Auth.OwnerInviteTTL
	}
	return s.config.Auth.LoginTokenTTL
}

func (s *tokenService) buildLink(t *domain.VerificationToken) string {
	base := s.config.Server.PublicBaseURL
	if t.Purpose == domain.PurposeOwnerInvitation {
		return fmt.Sprintf("%s/auth/owner-callback?token=%s", base, t.Token)
	}
	return fmt.Sprintf("%s/auth/callback?token=%s", base, t.Token)
}

func (s *tokenService) sendEmail(ctx context.Context, t *domain.VerificationToken, link string) {
	validFor := t.ExpiresAt.Sub(t.IssuedAt)

	var err error
	switch t.Purpose {
	case domain.PurposeOwnerInvitation:
		err = s.mailer.SendOwnerInviteEmail(t.Email, "", link, validFor)
	default:
		err = s.mailer.SendMagicLinkEmail(t.Email, link, validFor)
	}
	if err != nil {
		// The token already exists and stays valid; the subject can
		// retrieve a fresh one via re-issuance.
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "purpose", string(t.Purpose))
	}
}
