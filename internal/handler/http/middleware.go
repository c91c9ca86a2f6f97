package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/authservice/internal/domain"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/logger"
)

const (
	msgAuthRequired = "Authentication required"
	msgAdminOnly    = "Admin access only"
	msgInsufficient = "Insufficient permissions"

	bearerPrefix = "Bearer "

	// DefaultMaxBodyBytes caps JSON request bodies at 16 KiB.
	DefaultMaxBodyBytes = 16 << 10
)

type identityKey struct{}

// Authenticator resolves a bearer token to the identity of an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// IdentityFromContext returns the identity attached by Authenticate, or nil.
func IdentityFromContext(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(identityKey{}).(*domain.Identity)
	return id
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Authenticate is the request gate. It requires an "Authorization: Bearer
// <token>" header, resolves the token through authn and attaches the
// resulting identity to the request context.
func Authenticate(authn Authenticator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized(msgAuthRequired), l)
				return
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = logger.WithUserID(ctx, identity.ID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", identity.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// RequireRole is the role gate. It must run after Authenticate.
func RequireRole(role string, l *slog.Logger) func(http.Handler) http.Handler {
	denied := msgInsufficient
	if role == domain.RoleAdmin {
		denied = msgAdminOnly
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized(msgAuthRequired), l)
				return
			}
			if identity.Role != role {
				httputil.WriteError(w, r, apperrors.Forbidden(denied), l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
