package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

// --- Mock Implementations ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string, includePassword bool) (*domain.User, error) {
	args := m.Called(ctx, email, includePassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string, fields ...string) (*domain.User, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) SetActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	args := m.Called(ctx, id, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// --- Test Helpers ---

const testUserID = "65f1c0a2b3d4e5f6a7b8c9d0"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestIssuer(opts ...auth.TokenIssuerOption) *auth.TokenIssuer {
	return auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "test-access-secret-for-testing-only",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "test-refresh-secret-for-testing-only",
		RefreshTTL:    7 * 24 * time.Hour,
	}, opts...)
}

func newTestService(repo *mockUserRepository, pub *mockPublisher) *AuthService {
	return NewAuthService(repo, auth.NewPasswordHasher(bcrypt.MinCost), newTestIssuer(), pub, newTestLogger())
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func storedUser(active bool) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           testUserID,
		Name:         "A",
		Email:        "a@x.com",
		PasswordHash: hashForTest("secret123"),
		Role:         domain.RoleUser,
		IsActive:     active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func assertAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func notFound() error {
	return apperrors.NotFound("user", "a@x.com")
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	repo := new(mockUserRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, pub)
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", false).Return(nil, notFound())
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Run(func(args mock.Arguments) {
		u := args.Get(1).(*domain.User)
		u.ID = testUserID
	}).Return(nil)
	pub.On("PublishUserRegistered", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	result, err := svc.Register(ctx, RegisterInput{Name: " A ", Email: " A@X.com", Password: "secret123"})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, testUserID, result.User.ID)
	assert.Equal(t, "A", result.User.Name)
	assert.Equal(t, "a@x.com", result.User.Email)
	assert.Equal(t, domain.RoleUser, result.User.Role)
	assert.True(t, result.User.IsActive)
	assert.False(t, result.User.IsVerified)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEqual(t, result.AccessToken, result.RefreshToken)

	created := repo.Calls[1].Arguments.Get(1).(*domain.User)
	assert.NotEqual(t, "secret123", created.PasswordHash, "plaintext must never be stored")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret123")))

	claims, err := newTestIssuer().VerifyAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.UserID)

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRegister_DuplicateEmail_PreCheck(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", false).Return(storedUser(true), nil)

	result, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: "secret123"})

	assert.Nil(t, result)
	assertAppError(t, err, 409, "Email already registered")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_DuplicateEmail_LostRaceAtInsert(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", false).Return(nil, notFound())
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.Conflict("Email already registered"))

	result, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: "secret123"})

	assert.Nil(t, result)
	assertAppError(t, err, 409, "Email already registered")
}

func TestRegister_PasswordTooLong(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "A", Email: "a@x.com", Password: strings.Repeat("é", 40),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 422, appErr.Status)
	require.Len(t, appErr.Errors, 1)
	assert.Equal(t, "password", appErr.Errors[0].Field)
	repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_StoreFailure(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", false).Return(nil, errors.New("server selection timeout"))

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: "secret123"})

	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

func TestRegister_PublishFailureIsNotFatal(t *testing.T) {
	repo := new(mockUserRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, pub)
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", false).Return(nil, notFound())
	repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	pub.On("PublishUserRegistered", ctx, mock.AnythingOfType("*domain.User")).Return(errors.New("broker down"))

	result, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: "secret123"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestRegister_RecordsOutcome(t *testing.T) {
	before := testutil.ToFloat64(AuthOperations.WithLabelValues(opRegister, outcomeConflict))

	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	repo.On("FindByEmail", mock.Anything, "a@x.com", false).Return(storedUser(true), nil)
	_, _ = svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@x.com", Password: "secret123"})

	after := testutil.ToFloat64(AuthOperations.WithLabelValues(opRegister, outcomeConflict))
	assert.Equal(t, before+1, after)
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", true).Return(storedUser(true), nil)

	result, err := svc.Login(ctx, LoginInput{Email: "A@x.com ", Password: "secret123"})

	require.NoError(t, err)
	assert.Equal(t, testUserID, result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "nobody@x.com", true).Return(nil, notFound())
	repo.On("FindByEmail", ctx, "a@x.com", true).Return(storedUser(true), nil)

	_, unknownErr := svc.Login(ctx, LoginInput{Email: "nobody@x.com", Password: "secret123"})
	_, wrongErr := svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong-password"})

	assertAppError(t, unknownErr, 401, "Invalid email or password")
	assertAppError(t, wrongErr, 401, "Invalid email or password")
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLogin_DisabledAccount_CorrectPassword(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", true).Return(storedUser(false), nil)

	_, err := svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret123"})

	assertAppError(t, err, 403, "Account is disabled")
}

func TestLogin_DisabledAccount_WrongPassword(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", true).Return(storedUser(false), nil)

	_, err := svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong-password"})

	assertAppError(t, err, 403, "Account is disabled")
}

func TestLogin_StoreFailure(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByEmail", ctx, "a@x.com", true).Return(nil, errors.New("connection reset"))

	_, err := svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret123"})

	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

// --- Authenticate Tests ---

func TestAuthenticate_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	token, err := newTestIssuer().IssueAccess(testUserID)
	require.NoError(t, err)
	repo.On("FindByID", ctx, testUserID, repository.GateFields).
		Return(&domain.User{ID: testUserID, Role: domain.RoleAdmin, IsActive: true, IsVerified: true}, nil)

	identity, err := svc.Authenticate(ctx, token)

	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{ID: testUserID, Role: domain.RoleAdmin, IsVerified: true}, identity)
	repo.AssertExpectations(t)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))

	_, err := svc.Authenticate(context.Background(), "not.a.token")

	assertAppError(t, err, 401, "Invalid or expired token")
	assert.NotContains(t, err.Error(), "signature")
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	repo := new(mockUserRepository)
	issued := time.Now().Add(-time.Hour)
	token, err := newTestIssuer(auth.WithClock(func() time.Time { return issued })).IssueAccess(testUserID)
	require.NoError(t, err)

	svc := newTestService(repo, new(mockPublisher))
	_, err = svc.Authenticate(context.Background(), token)

	assertAppError(t, err, 401, "Invalid or expired token")
}

func TestAuthenticate_UserGone(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	token, err := newTestIssuer().IssueAccess(testUserID)
	require.NoError(t, err)
	repo.On("FindByID", ctx, testUserID, repository.GateFields).Return(nil, apperrors.NotFound("user", testUserID))

	_, err = svc.Authenticate(ctx, token)

	assertAppError(t, err, 401, "User no longer exists")
}

func TestAuthenticate_DeactivatedAfterIssuance(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	token, err := newTestIssuer().IssueAccess(testUserID)
	require.NoError(t, err)
	repo.On("FindByID", ctx, testUserID, repository.GateFields).
		Return(&domain.User{ID: testUserID, Role: domain.RoleUser, IsActive: false}, nil)

	_, err = svc.Authenticate(ctx, token)

	assertAppError(t, err, 403, "Account is disabled")
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	token, err := newTestIssuer().IssueAccess(testUserID)
	require.NoError(t, err)
	repo.On("FindByID", ctx, testUserID, repository.GateFields).Return(nil, errors.New("socket closed"))

	_, err = svc.Authenticate(ctx, token)

	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

// --- Profile / SetActive Tests ---

func TestProfile_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	u := storedUser(true)
	u.PasswordHash = ""
	repo.On("FindByID", ctx, testUserID, []string(nil)).Return(u, nil)

	view, err := svc.Profile(ctx, testUserID)

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", view.Email)
}

func TestProfile_NotFound(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("FindByID", ctx, testUserID, []string(nil)).Return(nil, apperrors.NotFound("user", testUserID))

	_, err := svc.Profile(ctx, testUserID)

	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestSetActive_Success(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("SetActive", ctx, testUserID, false).Return(storedUser(false), nil)

	view, err := svc.SetActive(ctx, testUserID, false)

	require.NoError(t, err)
	assert.False(t, view.IsActive)
}

func TestSetActive_NotFound(t *testing.T) {
	repo := new(mockUserRepository)
	svc := newTestService(repo, new(mockPublisher))
	ctx := context.Background()

	repo.On("SetActive", ctx, testUserID, true).Return(nil, apperrors.NotFound("user", testUserID))

	_, err := svc.SetActive(ctx, testUserID, true)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
