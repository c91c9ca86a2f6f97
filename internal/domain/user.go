package domain

import (
	"strings"
	"time"
)

// User represents a registered account. PasswordHash is only populated when
// the store was explicitly asked to include it.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	IsVerified   bool
	Image        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser returns a user with the registration defaults applied: role USER,
// active, unverified.
func NewUser(name, email, passwordHash, image string) *User {
	return &User{
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		IsActive:     true,
		IsVerified:   false,
		Image:        strings.TrimSpace(image),
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity is the minimal projection attached to an authenticated request.
type Identity struct {
	ID         string `json:"_id"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// UserView is the sanitized user returned to clients. It has no field for
// the password hash.
type UserView struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Image      string    `json:"image,omitempty"`
	IsActive   bool      `json:"isActive"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Sanitize projects the user into its client-facing view.
func (u *User) Sanitize() UserView {
	return UserView{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Image:      u.Image,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Identity returns the request-scoped identity for the user.
func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Role: u.Role, IsVerified: u.IsVerified}
}

// AuthResult is returned by successful registration and login.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}
