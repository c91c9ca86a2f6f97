package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/logger"
)

// Response is the JSON envelope for successful responses.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the JSON envelope for every failed request. Errors is
// always serialized, as an empty array when there are no field details.
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Errors    []apperrors.FieldError `json:"errors"`
	RequestID string                 `json:"requestId,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope carrying data.
func WriteSuccess(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// WriteError is the single place where errors become HTTP responses.
// AppErrors are reported with their own status, message and field list.
// Bare sentinel errors map to a generic message for their status. Anything
// else is logged with full detail and reported as a 500 with a generic
// message. It prefers the request-scoped logger from context (set by the
// RequestLogger middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		WriteJSON(w, appErr.Status, ErrorResponse{
			Message:   appErr.Message,
			Errors:    fieldsOrEmpty(appErr.Errors),
			RequestID: requestID,
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	message := http.StatusText(status)

	if status >= http.StatusInternalServerError {
		status = http.StatusInternalServerError
		message = "Internal Server Error"
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Message:   message,
		Errors:    []apperrors.FieldError{},
		RequestID: requestID,
	})
}

func fieldsOrEmpty(fields []apperrors.FieldError) []apperrors.FieldError {
	if fields == nil {
		return []apperrors.FieldError{}
	}
	return fields
}
