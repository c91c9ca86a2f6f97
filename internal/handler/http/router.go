package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/service"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/health"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	ServiceName         string
	CORS                middleware.CORSConfig
	MaxBodyBytes        int64
	// CredentialRateLimit throttles register and login per client.
	CredentialRateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	authService *service.AuthService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()

	// Set before any Route call so sub-routers inherit them.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: "Route not found",
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}, logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, &apperrors.AppError{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "Method not allowed",
			Status:  http.StatusMethodNotAllowed,
		}, logger)
	})

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(LimitBody(cfg.MaxBodyBytes))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(authService, logger)
	userHandler := NewUserHandler(authService, logger)
	requireAuth := Authenticate(authService, logger)

	r.Route("/api/v1/user", func(r chi.Router) {
		r.Use(middleware.NoStore)

		credentials := r.With()
		if cfg.CredentialRateLimit.Enabled() {
			credentials = r.With(middleware.RateLimit(cfg.CredentialRateLimit, logger))
		}
		credentials.Post("/register", authHandler.Register)
		credentials.Post("/login", authHandler.Login)

		r.With(requireAuth).Get("/me", userHandler.GetProfile)
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(requireAuth)
		r.Use(RequireRole(domain.RoleAdmin, logger))

		r.Patch("/users/{id}/status", userHandler.SetStatus)
	})

	return r
}
