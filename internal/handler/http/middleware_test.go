package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authservice/internal/domain"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/logger"
)

type stubAuthenticator struct {
	identity *domain.Identity
	err      error
	gotToken string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*domain.Identity, error) {
	s.gotToken = token
	return s.identity, s.err
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

// --- Authenticate (request gate) Tests ---

func TestAuthenticate_HeaderForms(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"lowercase scheme", "bearer abc"},
		{"no token", "Bearer "},
		{"blank token", "Bearer    "},
		{"no space", "Bearerabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := &stubAuthenticator{identity: &domain.Identity{ID: "u1", Role: domain.RoleUser}}
			called := false
			handler := Authenticate(authn, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.False(t, called)
			assert.Empty(t, authn.gotToken, "authenticator must not run without a bearer token")
			resp := decodeEnvelope(t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, "Authentication required", resp.Message)
			assert.NotNil(t, resp.Errors)
		})
	}
}

func TestAuthenticate_AttachesIdentity(t *testing.T) {
	authn := &stubAuthenticator{identity: &domain.Identity{ID: "u1", Role: domain.RoleAdmin, IsVerified: true}}

	var got *domain.Identity
	var gotUserID string
	handler := Authenticate(authn, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		gotUserID = logger.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer  tok.en.value ")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "tok.en.value", authn.gotToken)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.True(t, got.IsVerified)
	assert.Equal(t, "u1", gotUserID)
}

func TestAuthenticate_PropagatesServiceDecision(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid token", apperrors.Unauthorized("Invalid or expired token"), http.StatusUnauthorized, "Invalid or expired token"},
		{"user gone", apperrors.Unauthorized("User no longer exists"), http.StatusUnauthorized, "User no longer exists"},
		{"disabled", apperrors.Forbidden("Account is disabled"), http.StatusForbidden, "Account is disabled"},
		{"store failure", assert.AnError, http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Authenticate(&stubAuthenticator{err: tt.err}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer abc")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			resp := decodeEnvelope(t, rr)
			assert.Equal(t, tt.message, resp.Message)
			assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
		})
	}
}

// --- RequireRole (role gate) Tests ---

func serveWithIdentity(identity *domain.Identity, role string) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := RequireRole(role, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if identity != nil {
		req = req.WithContext(WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, called
}

func TestRequireRole_NoIdentity(t *testing.T) {
	rr, called := serveWithIdentity(nil, domain.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, called)
	assert.Equal(t, "Authentication required", decodeEnvelope(t, rr).Message)
}

func TestRequireRole_WrongRole(t *testing.T) {
	rr, called := serveWithIdentity(&domain.Identity{ID: "u1", Role: domain.RoleUser}, domain.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, called)
	assert.Equal(t, "Admin access only", decodeEnvelope(t, rr).Message)
}

func TestRequireRole_NonAdminRoleMessage(t *testing.T) {
	rr, _ := serveWithIdentity(&domain.Identity{ID: "u1", Role: domain.RoleAdmin}, domain.RoleUser)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Insufficient permissions", decodeEnvelope(t, rr).Message)
}

func TestRequireRole_MatchingRolePassesThrough(t *testing.T) {
	rr, called := serveWithIdentity(&domain.Identity{ID: "u1", Role: domain.RoleAdmin}, domain.RoleAdmin)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
	assert.Empty(t, rr.Body.String())
}

// --- LimitBody Tests ---

func TestLimitBody(t *testing.T) {
	var readErr error
	handler := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}
