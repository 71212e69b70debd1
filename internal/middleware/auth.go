package middleware

import (
	"net/http"
	"strings"
	"time"

	"story-offline/internal/client"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// TokenMiddleware forwards the caller's bearer token to the remote client.
// Requests without a token fall back to the configured one. The token is
// signed by the remote service, so only its expiry is inspected here; the
// latest token is also kept for background sync runs.
func TokenMiddleware(cache *client.TokenCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			token := parts[1]
			if expired(token, time.Now()) {
				respondError(w, "Token expired", http.StatusUnauthorized)
				return
			}

			if cache != nil {
				cache.Set(token)
			}
			next.ServeHTTP(w, r.WithContext(client.WithToken(r.Context(), token)))
		})
	}
}

// expired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens are never considered expired.
func expired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		log.Debug().Err(err).Msg("Bearer token is not a JWT")
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
