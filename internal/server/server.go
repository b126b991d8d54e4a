// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/echoes/internal/auth"
	bridgeDomain "github.com/pendergraft/echoes/internal/bridge/domain"
	bridgeTransport "github.com/pendergraft/echoes/internal/bridge/transport"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/middleware/logging"
	"github.com/pendergraft/echoes/internal/middleware/ratelimit"
	"github.com/pendergraft/echoes/internal/middleware/realip"
	"github.com/pendergraft/echoes/internal/middleware/security"
	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/storage"
	"github.com/pendergraft/echoes/internal/validation"
)

// ReadyFunc reports whether the daemon can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Deps are the services the server exposes.
type Deps struct {
	Bridge       bridgeDomain.Service
	Wallet       bridgeTransport.WalletController // optional
	Transactions storage.TransactionStore         // optional
	Ready        ReadyFunc                        // optional
	Version      string
}

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	router *chi.Mux
}

// New creates a new server
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter (blocks malicious patterns, bypasses health checks)
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:             s.cfg.RateLimit.Enabled,
		RequestsPerMin:      s.cfg.RateLimit.RequestsPerMin,
		WriteRequestsPerMin: s.cfg.RateLimit.WriteRequestsPerMin,
		BurstSize:           s.cfg.RateLimit.BurstSize,
		CleanupMinutes:      s.cfg.RateLimit.CleanupMinutes,
	}))

	// 5. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 6. CORS
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, "+auth.TokenHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Get("/version", s.handleVersion)

	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	bridgeHandler := bridgeTransport.NewHandler(s.deps.Bridge)
	if s.deps.Wallet != nil {
		bridgeHandler.SetWalletController(s.deps.Wallet)
	}

	// Auth middleware for write operations
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "token" {
			r.Use(auth.Middleware(s.cfg.Auth.Token, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Bridge - split read/write
		r.Route("/bridge", func(r chi.Router) {
			// Read operations - no auth required
			bridgeHandler.RegisterReadRoutes(r)

			// Write operations - auth required
			r.Group(func(r chi.Router) {
				r.Use(security.RequireJSON)
				requireAuth(r)
				if s.cfg.Server.RequestTimeout > 0 {
					r.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
				}
				bridgeHandler.RegisterWriteRoutes(r)
			})
		})

		// State snapshots as server-sent events
		r.Get("/events", bridgeHandler.HandleEvents)

		if s.deps.Transactions != nil {
			r.Group(func(r chi.Router) {
				requireAuth(r)
				r.Get("/transactions", s.handleListTransactions)
			})
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  s.deps.Bridge.Status().Phase,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	v := s.deps.Version
	if v == "" {
		v = validation.DevVersion
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": v})
}

// transactionResponse is a recorded wallet request.
type transactionResponse struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	Status        string          `json:"status"`
	ValidUntil    int64           `json:"validUntil"`
	CreatedAt     string          `json:"createdAt"`
	Request       json.RawMessage `json:"request"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		if addr := s.deps.Bridge.GetUserAddress(); addr != nil {
			wallet = *addr
		}
	}
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "wallet is required when no wallet is connected")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	txs, err := s.deps.Transactions.ListTransactions(r.Context(), wallet, limit)
	if err != nil {
		s.logger.Error("listing transactions", "wallet", wallet, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list transactions")
		return
	}

	data := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		data[i] = transactionResponse{
			ID:            tx.ID,
			WalletAddress: tx.WalletAddress,
			Status:        tx.Status,
			ValidUntil:    tx.ValidUntil,
			CreatedAt:     tx.CreatedAt,
		}
		if json.Valid([]byte(tx.Request)) {
			data[i].Request = json.RawMessage(tx.Request)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
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
