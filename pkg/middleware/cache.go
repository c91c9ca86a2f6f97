package middleware

import (
	"net/http"
)

// NoStore forbids clients and proxies from caching the response. Mount it
// on routes that return tokens or personal data.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
