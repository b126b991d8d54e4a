package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":12345"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BlocksExcessRequests(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2, CleanupMinutes: 1})
	defer rl.Stop()
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, send(h, "GET", "/api/v1/bridge/pieces", "192.168.1.100").Code)
	}

	rr := send(h, "GET", "/api/v1/bridge/pieces", "192.168.1.100")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok, "error should be an object")
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])

	// A second client keeps its own quota
	assert.Equal(t, http.StatusOK, send(h, "GET", "/api/v1/bridge/pieces", "192.168.1.101").Code)
}

func TestRateLimiter_ReadsDoNotStarveWrites(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, WriteRequestsPerMin: 6, BurstSize: 1, CleanupMinutes: 1})
	defer rl.Stop()
	h := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, send(h, "GET", "/api/v1/bridge/contract-info", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, "GET", "/api/v1/bridge/contract-info", "10.0.0.1").Code)

	assert.Equal(t, http.StatusOK, send(h, "POST", "/api/v1/bridge/pieces", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, "POST", "/api/v1/bridge/pieces", "10.0.0.1").Code)
}

func TestIsWrite(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"GET", "/api/v1/bridge/pieces", false},
		{"HEAD", "/api/v1/bridge/pieces", false},
		{"GET", "/api/v1/bridge/audio-graph/EQ-nft", true},
		{"POST", "/api/v1/bridge/pieces", true},
		{"PUT", "/api/v1/bridge/pending", true},
		{"DELETE", "/api/v1/bridge/pending", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, isWrite(req), "%s %s", tt.method, tt.path)
	}
}

func TestRateLimiter_ExemptPaths(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer rl.Stop()
	h := rl.Middleware()(okHandler())

	for path := range exemptPaths {
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, send(h, "GET", path, "192.168.1.100").Code,
				"%s request %d should not be rate limited", path, i+1)
		}
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})(okHandler())

	for i := 0; i < 100; i++ {
		assert.Equal(t, http.StatusOK, send(h, "POST", "/api/v1/bridge/pieces", "192.168.1.100").Code)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 100, CleanupMinutes: 1})
	defer rl.Stop()
	h := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				send(h, "GET", "/api/v1/bridge/status", "192.168.1.100")
			}
		}()
	}
	wg.Wait()
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})
	defer rl.Stop()

	rl.limiter("fresh", false)
	rl.limiter("stale", true)

	rl.mu.Lock()
	rl.clients["stale"].lastSeen = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	rl.sweep(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Contains(t, rl.clients, "fresh")
	assert.NotContains(t, rl.clients, "stale")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5})
	rl.Stop()
	rl.Stop()
}
