package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_ClientIP(t *testing.T) {
	trusted := []string{"10.0.0.0/8", "192.168.0.0/16", "172.16.0.1", "fd00::/8"}

	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{name: "proxy trust disabled", remoteAddr: "192.168.1.100:12345", xff: "203.0.113.50", want: "192.168.1.100"},
		{name: "trusted proxy", trustProxy: true, remoteAddr: "10.0.0.1:12345", xff: "203.0.113.50, 10.0.0.5", want: "203.0.113.50"},
		{name: "untrusted peer", trustProxy: true, remoteAddr: "203.0.113.1:12345", xff: "198.51.100.7", want: "203.0.113.1"},
		{name: "rightmost untrusted hop", trustProxy: true, remoteAddr: "10.0.0.1:1", xff: "1.1.1.1, 2.2.2.2, 10.0.0.2", want: "2.2.2.2"},
		{name: "all hops trusted", trustProxy: true, remoteAddr: "10.0.0.1:1", xff: "10.0.0.9, 10.0.0.8", want: "10.0.0.9"},
		{name: "single trusted address", trustProxy: true, remoteAddr: "172.16.0.1:1", xff: "198.51.100.7", want: "198.51.100.7"},
		{name: "x-real-ip fallback", trustProxy: true, remoteAddr: "10.0.0.1:1", xRealIP: " 198.51.100.9 ", want: "198.51.100.9"},
		{name: "no headers", trustProxy: true, remoteAddr: "10.0.0.1:1", want: "10.0.0.1"},
		{name: "ipv6 trusted proxy", trustProxy: true, remoteAddr: "[fd00::1]:8080", xff: "2001:db8::1", want: "2001:db8::1"},
		{name: "ipv6 peer untrusted", trustProxy: true, remoteAddr: "[2001:db8::2]:8080", xff: "2001:db8::1", want: "2001:db8::2"},
		{name: "remote addr without port", remoteAddr: "192.168.1.5", want: "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := Middleware(Config{TrustProxy: tt.trustProxy, TrustedProxies: trusted})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					captured = GetClientIP(r)
				}))

			req := httptest.NewRequest("GET", "/api/v1/bridge/status", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, captured)
		})
	}
}

func TestNewResolver_SkipsInvalidEntries(t *testing.T) {
	r := NewResolver(Config{TrustProxy: true, TrustedProxies: []string{"bogus", "10.1.2.3/8", "::1"}})
	assert.Len(t, r.trusted, 2)
	assert.True(t, r.isTrusted("10.200.0.1"))
	assert.True(t, r.isTrusted("::1"))
	assert.False(t, r.isTrusted("bogus"))
}

func TestGetClientIP_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.3:999"
	assert.Equal(t, "198.51.100.3", GetClientIP(req))
}
