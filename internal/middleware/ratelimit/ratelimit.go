// Package ratelimit provides per-client rate limiting for the bridge API.
// Reads and actions draw from separate token buckets so a polling UI cannot
// starve transaction submission.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/echoes/internal/middleware/realip"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin is the read budget per client
	RequestsPerMin int
	// WriteRequestsPerMin is the action budget per client. Zero reuses
	// RequestsPerMin.
	WriteRequestsPerMin int
	BurstSize           int
	// CleanupMinutes is both the sweep interval and the idle threshold
	CleanupMinutes int
}

// exemptPaths are never limited. The event stream is a single long request.
var exemptPaths = map[string]bool{
	"/health":        true,
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/api/v1/events": true,
}

type client struct {
	read     *rate.Limiter
	write    *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client limiters
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	readRate  rate.Limit
	writeRate rate.Limit
	burst     int
	idle      time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a RateLimiter and starts its sweep goroutine.
func New(cfg Config) *RateLimiter {
	writeRPM := cfg.WriteRequestsPerMin
	if writeRPM <= 0 {
		writeRPM = cfg.RequestsPerMin
	}

	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	rl := &RateLimiter{
		clients:   make(map[string]*client),
		readRate:  perMinute(cfg.RequestsPerMin),
		writeRate: perMinute(writeRPM),
		burst:     cfg.BurstSize,
		idle:      idle,
		stopCh:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops clients idle since before now minus the idle threshold.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idle)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) limiter(ip string, write bool) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{
			read:  rate.NewLimiter(rl.readRate, rl.burst),
			write: rate.NewLimiter(rl.writeRate, rl.burst),
		}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	if write {
		return c.write
	}
	return c.read
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		// Loading an audio graph is an action despite the verb.
		return strings.Contains(r.URL.Path, "/audio-graph/")
	default:
		return true
	}
}

// Middleware returns an HTTP middleware that rate limits requests per client
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.limiter(realip.GetClientIP(r), isWrite(r)).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Middleware builds a RateLimiter from cfg for the lifetime of the process.
// A disabled config yields a pass-through.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}
