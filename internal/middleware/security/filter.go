// Package security provides request hardening for the bridge API.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// exemptPaths skip filtering
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
	"/version": true,
}

// allowedPrefixes are the only path roots the daemon serves. Anything else is
// a scanner probe and is rejected before routing.
var allowedPrefixes = []string{
	"/api/v1/",
}

// blockedPatterns indicate traversal or injection attempts
var blockedPatterns = []string{
	"../",
	"..\\",
	"..%2f",
	"..%5c",
	"%2e%2e",
	"%00",
	"\x00",
}

// FilterMiddleware rejects requests outside the served API tree and requests
// whose path carries traversal or injection patterns, raw or URL-decoded.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if blocked(r) {
				writeBlockedResponse(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func blocked(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)

	allowed := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return true
	}

	candidates := []string{path, strings.ToLower(r.URL.EscapedPath())}
	if decoded, err := url.PathUnescape(r.URL.EscapedPath()); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	for _, c := range candidates {
		for _, pattern := range blockedPatterns {
			if strings.Contains(c, pattern) {
				return true
			}
		}
	}
	return false
}

// writeBlockedResponse writes a generic 400 response without revealing what triggered the block
func writeBlockedResponse(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
