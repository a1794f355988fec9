// Package handler provides HTTP handlers for the Regression-Warden API.
package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// APIKeyAuth guards the API with a shared key carried in the X-API-Key
// header.
func APIKeyAuth(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn("rejected request with missing or invalid API key", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
