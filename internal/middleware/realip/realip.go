// Package realip resolves the client address of a bridge request, honoring
// X-Forwarded-For only when the peer is a trusted proxy.
package realip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey string

// ClientIPKey is the context key for the resolved client IP
const ClientIPKey contextKey = "client_ip"

// Config holds the configuration for the real IP middleware
type Config struct {
	TrustProxy bool
	// TrustedProxies holds CIDR ranges or single addresses
	TrustedProxies []string
}

// Resolver extracts client addresses from requests.
type Resolver struct {
	trustProxy bool
	trusted    []netip.Prefix
}

// NewResolver parses cfg. Unparsable proxy entries are skipped.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{trustProxy: cfg.TrustProxy}
	if !cfg.TrustProxy {
		return r
	}
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return r
}

// Middleware stores the resolved client IP in the request context.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	resolver := NewResolver(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ClientIPKey, resolver.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the peer address, or the rightmost untrusted hop of
// X-Forwarded-For when the peer is a trusted proxy. X-Real-IP is the fallback
// when a trusted proxy sends no X-Forwarded-For.
func (rs *Resolver) ClientIP(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)
	if !rs.trustProxy || !rs.isTrusted(peer) {
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !rs.isTrusted(hop) {
			return hop
		}
	}
	// Every hop is trusted; the leftmost is the origin.
	if first := strings.TrimSpace(hops[0]); first != "" {
		return first
	}
	return peer
}

func (rs *Resolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rs.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// GetClientIP returns the IP stored by Middleware, falling back to the peer
// address.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}
