package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const ClientKey contextKey = "client"

// APIKeyAuth validates API key from Authorization header. keys maps a client
// name to its key; the matched name is stored in the request context.
func APIKeyAuth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			var client string
			for name, key := range keys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					client = name
					break
				}
			}
			if client == "" {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientKey, client)))
		})
	}
}

// ClientFromContext returns the authenticated client name, if any.
func ClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(ClientKey).(string); ok {
		return c
	}
	return ""
}
