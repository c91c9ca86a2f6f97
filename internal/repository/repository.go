package repository

import (
	"context"

	"github.com/utafrali/authservice/internal/domain"
)

// Stored user field names, usable as FindByID projections.
const (
	FieldID         = "_id"
	FieldName       = "name"
	FieldEmail      = "email"
	FieldPassword   = "password"
	FieldRole       = "role"
	FieldIsActive   = "isActive"
	FieldIsVerified = "isVerified"
	FieldImage      = "image"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

// GateFields is the projection loaded for every authenticated request.
var GateFields = []string{FieldID, FieldRole, FieldIsActive, FieldIsVerified}

// UserRepository defines the interface for user persistence operations.
// Lookups of a missing user return an error wrapping apperrors.ErrNotFound.
type UserRepository interface {
	// FindByEmail retrieves a user by normalized email. The password hash is
	// only loaded when includePassword is true.
	FindByEmail(ctx context.Context, email string, includePassword bool) (*domain.User, error)

	// FindByID retrieves a user by id, loading only the given fields. With no
	// fields, everything except the password hash is loaded.
	FindByID(ctx context.Context, id string, fields ...string) (*domain.User, error)

	// Create inserts a new user and assigns its ID and timestamps. A taken
	// email yields a Conflict error.
	Create(ctx context.Context, user *domain.User) error

	// SetActive flips the active flag and returns the updated user without
	// its password hash.
	SetActive(ctx context.Context, id string, active bool) (*domain.User, error)
}
