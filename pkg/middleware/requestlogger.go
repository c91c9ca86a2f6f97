package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/authservice/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, trace_id and span_id. Handlers retrieve it with
// logger.FromContext.
//
// Mount it after RequestLogging and Tracing so those values are present.
// Authentication happens later in the chain; the request gate re-enriches
// the stored logger with user_id once the caller is known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
