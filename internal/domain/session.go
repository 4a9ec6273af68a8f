package domain

import (
	"errors"
	"time"
)

// Session is an immutable snapshot of identity taken at authentication
// time. Re-authentication creates a new session; nothing updates one in
// place. The token is opaque: the server resolves identity by lookup,
// never by decoding the credential.
type Session struct {
	Token       string    `json:"-"`
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

var ErrSessionNotFound = errors.New("session not found")
