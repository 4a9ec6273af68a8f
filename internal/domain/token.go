package domain

import (
	"errors"
	"time"
)

// TokenPurpose binds a verification token to the single flow it may
// authenticate. Tokens are never valid across purposes.
type TokenPurpose string

const (
	PurposeLogin           TokenPurpose = "LOGIN"
	PurposeOwnerInvitation TokenPurpose = "OWNER_INVITATION"
)

func IsValidPurpose(p TokenPurpose) bool {
	return p == PurposeLogin || p == PurposeOwnerInvitation
}

// VerificationToken is a single-use proof of control of an email address.
// The token value is an opaque lookup key and must never be logged in full.
type VerificationToken struct {
	ID         int64        `json:"id"`
	Token      string       `json:"-"`
	Email      string       `json:"email"`
	Purpose    TokenPurpose `json:"purpose"`
	IssuedAt   time.Time    `json:"issued_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
}

func (t *VerificationToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

func (t *VerificationToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Verification failures. The HTTP layer collapses all of these into a
// generic "invalid or expired token" so callers cannot enumerate which
// case they hit.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenConsumed = errors.New("token already consumed")
	ErrTokenPurpose  = errors.New("token purpose mismatch")
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrRateLimited  = errors.New("too many requests")
)
