package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a closed set. Handlers never compare raw strings; they go
// through the capability functions below.
type Role string

const (
	RoleVisitor Role = "VISITOR"
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
)

var validRoles = map[Role]bool{
	RoleVisitor: true,
	RoleOwner:   true,
	RoleAdmin:   true,
}

func IsValidRole(role Role) bool {
	return validRoles[role]
}

// CanModerate reports whether the role has platform-wide moderation rights.
func CanModerate(role Role) bool {
	return role == RoleAdmin
}

// CanManageEvent reports whether the role may manage a specific event.
// Owners are scoped to events they own; admins manage everything.
func CanManageEvent(role Role, ownsEvent bool) bool {
	if role == RoleAdmin {
		return true
	}
	return role == RoleOwner && ownsEvent
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type MagicLinkRequest struct {
	Email string `json:"email"`
}

func (r *MagicLinkRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *MagicLinkRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !IsValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

type OwnerRegisterRequest struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	OrganizationName string `json:"organization_name,omitempty"`
}

func (r *OwnerRegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
}

func (r *OwnerRegisterRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !IsValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
