package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/event"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

// Client-facing messages. Login failures share one message so callers cannot
// tell an unknown email from a wrong password.
const (
	msgEmailTaken         = "Email already registered"
	msgInvalidCredentials = "Invalid email or password"
	msgAccountDisabled    = "Account is disabled"
	msgInvalidToken       = "Invalid or expired token"
	msgUserGone           = "User no longer exists"
)

// AuthService implements registration, login and request authentication.
type AuthService struct {
	repo      repository.UserRepository
	hasher    *auth.PasswordHasher
	issuer    *auth.TokenIssuer
	publisher event.Publisher
	logger    *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	repo repository.UserRepository,
	hasher *auth.PasswordHasher,
	issuer *auth.TokenIssuer,
	publisher event.Publisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		issuer:    issuer,
		publisher: publisher,
		logger:    logger,
	}
}

// --- Input types ---

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Image    string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// --- Auth Operations ---

// Register creates a USER account and returns it with a fresh token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.AuthResult, error) {
	if len(input.Password) > auth.MaxPasswordBytes {
		record(opRegister, outcomeInvalid)
		return nil, apperrors.ValidationFailed([]apperrors.FieldError{
			{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)},
		})
	}

	email := domain.NormalizeEmail(input.Email)

	// Early exit only; the unique index decides concurrent registrations.
	_, err := s.repo.FindByEmail(ctx, email, false)
	switch {
	case err == nil:
		record(opRegister, outcomeConflict)
		return nil, apperrors.Conflict(msgEmailTaken)
	case !errors.Is(err, apperrors.ErrNotFound):
		record(opRegister, outcomeError)
		return nil, fmt.Errorf("check email: %w", err)
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		record(opRegister, outcomeError)
		return nil, err
	}

	user := domain.NewUser(input.Name, email, hashed, input.Image)
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			record(opRegister, outcomeConflict)
			return nil, err
		}
		record(opRegister, outcomeError)
		return nil, fmt.Errorf("create user: %w", err)
	}

	result, err := s.authResult(user)
	if err != nil {
		record(opRegister, outcomeError)
		return nil, err
	}

	if err := s.publisher.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	record(opRegister, outcomeSuccess)
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))

	return result, nil
}

// Login checks credentials and returns the user with a fresh token pair.
// A disabled account is rejected before its password is compared.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.AuthResult, error) {
	user, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(input.Email), true)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			record(opLogin, outcomeInvalidCredentials)
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		record(opLogin, outcomeError)
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.IsActive {
		record(opLogin, outcomeDisabled)
		return nil, apperrors.Forbidden(msgAccountDisabled)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		record(opLogin, outcomeInvalidCredentials)
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	result, err := s.authResult(user)
	if err != nil {
		record(opLogin, outcomeError)
		return nil, err
	}

	record(opLogin, outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return result, nil
}

// Authenticate resolves a bearer token to the identity of an active user.
// The verification error is never returned to the caller.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.issuer.VerifyAccess(strings.TrimSpace(token))
	if err != nil {
		record(opAuthenticate, outcomeInvalidToken)
		s.logger.DebugContext(ctx, "access token rejected", slog.String("error", err.Error()))
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	user, err := s.repo.FindByID(ctx, claims.UserID, repository.GateFields...)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			record(opAuthenticate, outcomeUserGone)
			return nil, apperrors.Unauthorized(msgUserGone)
		}
		record(opAuthenticate, outcomeError)
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !user.IsActive {
		record(opAuthenticate, outcomeDisabled)
		return nil, apperrors.Forbidden(msgAccountDisabled)
	}

	record(opAuthenticate, outcomeSuccess)
	return user.Identity(), nil
}

// --- User Operations ---

// Profile returns the sanitized user with the given id.
func (s *AuthService) Profile(ctx context.Context, id string) (*domain.UserView, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	view := user.Sanitize()
	return &view, nil
}

// SetActive enables or disables an account. A disabled account can neither
// log in nor use tokens issued before it was disabled.
func (s *AuthService) SetActive(ctx context.Context, id string, active bool) (*domain.UserView, error) {
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, fmt.Errorf("set user status: %w", err)
	}

	s.logger.InfoContext(ctx, "user status changed",
		slog.String("user_id", user.ID),
		slog.Bool("is_active", user.IsActive),
	)

	view := user.Sanitize()
	return &view, nil
}

func (s *AuthService) authResult(user *domain.User) (*domain.AuthResult, error) {
	access, err := s.issuer.IssueAccess(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.AuthResult{
		User:         user.Sanitize(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
