package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/service"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/validator"
)

// AuthHandler handles HTTP requests for the public auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration. Any role
// sent by the client is ignored.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Image    string `json:"image" validate:"omitempty,max=2048"`
}

// Normalize trims the free-text fields and folds the email to lowercase.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = domain.NormalizeEmail(r.Email)
	r.Image = strings.TrimSpace(r.Image)
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Normalize folds the email to lowercase.
func (r *LoginRequest) Normalize() {
	r.Email = domain.NormalizeEmail(r.Email)
}

// --- Handlers ---

// Register handles POST /api/v1/user/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Image:    req.Image,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, "User registered successfully", result)
}

// Login handles POST /api/v1/user/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Login successful", result)
}
