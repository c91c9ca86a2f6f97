package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authservice/internal/service"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/validator"
)

// UserHandler handles HTTP requests for authenticated user endpoints.
type UserHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// SetStatusRequest is the JSON request body for enabling or disabling an
// account.
type SetStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// GetProfile handles GET /api/v1/user/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized(msgAuthRequired), h.logger)
		return
	}

	user, err := h.service.Profile(r.Context(), identity.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "", user)
}

// SetStatus handles PATCH /api/v1/admin/users/{id}/status
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.SetActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "User status updated", user)
}
