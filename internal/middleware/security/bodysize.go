package security

import (
	"mime"
	"net/http"
)

// MaxBodySizeMiddleware limits request bodies to maxSizeMB megabytes.
// Piece payloads are small; the default limit is one megabyte.
func MaxBodySizeMiddleware(maxSizeMB int) func(http.Handler) http.Handler {
	if maxSizeMB <= 0 {
		maxSizeMB = 1
	}
	maxBytes := int64(maxSizeMB) << 20

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects bodies on state-changing requests unless they are
// declared as application/json. Browsers cannot send that content type
// cross-origin without a preflight.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}
