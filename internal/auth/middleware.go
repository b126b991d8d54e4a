// Package auth provides the bridge token middleware guarding write actions.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context key type for avoiding collisions
type contextKey string

const authenticatedContextKey contextKey = "authenticated"

// TokenHeader carries the bridge token when no Authorization header is sent.
const TokenHeader = "X-Bridge-Token"

// IsAuthenticated reports whether the request carried a valid bridge token.
func IsAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedContextKey).(bool)
	return ok
}

// Middleware returns an HTTP middleware that requires the bridge token.
func Middleware(token string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := tokenFromRequest(r)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bridge token required")
				return
			}

			if !TokenMatches(presented, token) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bridge token")
				return
			}

			ctx := context.WithValue(r.Context(), authenticatedContextKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware marks requests carrying a valid token as authenticated,
// but allows requests without one to proceed.
func OptionalMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if presented := tokenFromRequest(r); token != "" && presented != "" && TokenMatches(presented, token) {
				ctx := context.WithValue(r.Context(), authenticatedContextKey, true)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return ""
}
