package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/utafrali/authservice/pkg/errors"
)

var validate = newValidate()

// newValidate reports fields by their JSON name so that error lists match the
// request payload the client sent.
func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate validates a struct using go-playground/validator tags.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: validationErrors}
		}
		return err
	}
	return nil
}

// ValidationError wraps validator.ValidationErrors with a user-friendly message.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", err.Field(), msgForTag(err)))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns one entry per failed field, in struct declaration order.
func (e *ValidationError) Fields() []apperrors.FieldError {
	fields := make([]apperrors.FieldError, 0, len(e.Errors))
	for _, err := range e.Errors {
		fields = append(fields, apperrors.FieldError{
			Field:   err.Field(),
			Message: msgForTag(err),
		})
	}
	return fields
}

// AppError converts the validation failure into the 422 application error.
func (e *ValidationError) AppError() *apperrors.AppError {
	return apperrors.ValidationFailed(e.Fields())
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// Normalizer is implemented by request types that clean up their fields
// (trimming, case folding) before validation.
type Normalizer interface {
	Normalize()
}

// DecodeAndValidate reads JSON from the request body into dst and validates it.
// A body that cannot be decoded yields a 400 InvalidInput error; a body that
// fails validation yields a 422 ValidationFailed error listing every field.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidInput("request body too large")
		}
		return apperrors.InvalidInput("invalid request body")
	}

	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	if err := Validate(dst); err != nil {
		if valErr, ok := err.(*ValidationError); ok {
			return valErr.AppError()
		}
		return fmt.Errorf("validate request body: %w", err)
	}
	return nil
}
