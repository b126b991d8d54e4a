package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/echoes/internal/bridge/domain"
	"github.com/pendergraft/echoes/internal/gateway"
)

// keepAliveInterval spaces SSE comment frames on an idle stream.
const keepAliveInterval = 15 * time.Second

// WalletController connects and disconnects the wallet session.
type WalletController interface {
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
}

// Handler handles HTTP requests for the bridge.
type Handler struct {
	svc    domain.Service
	wallet WalletController
}

// NewHandler creates a new bridge HTTP handler.
func NewHandler(svc domain.Service) *Handler {
	return &Handler{svc: svc}
}

// SetWalletController enables the wallet connect and disconnect routes.
func (h *Handler) SetWalletController(wc WalletController) {
	h.wallet = wc
}

// RegisterReadRoutes registers read-only bridge routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/contract-info", h.handleContractInfo)
	r.Get("/wallet", h.handleWallet)
	r.Get("/vault", h.handleVault)
	r.Get("/pieces", h.handlePieces)
	r.Get("/pieces/data", h.handlePieceData)
	r.Get("/pieces/remix", h.handlePieceRemixData)
	r.Get("/registry", h.handleRegistry)
	r.Get("/pending", h.handleGetPending)
	r.Get("/status", h.handleStatus)
	r.Get("/alerts", h.handleAlerts)
}

// RegisterWriteRoutes registers bridge actions (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/vault/refresh", h.handleRefreshVault)
	r.Post("/pieces", h.handleCreatePiece)
	r.Put("/pending", h.handleSetPending)
	r.Delete("/pending", h.handleClearPending)
	r.Post("/audio-graph", h.handleSaveAudioGraph)
	r.Get("/audio-graph/{address}", h.handleLoadAudioGraph)

	if h.wallet != nil {
		r.Post("/wallet/connect", h.handleConnect)
		r.Post("/wallet/disconnect", h.handleDisconnect)
	}
}

func (h *Handler) handleContractInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetContractInfo())
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WalletResponse{
		Connected: h.svc.IsWalletConnected(),
		Address:   h.svc.GetUserAddress(),
	})
}

func (h *Handler) handleVault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"vaultAddress": h.svc.GetUserVaultAddress(),
	})
}

func (h *Handler) handlePieces(w http.ResponseWriter, r *http.Request) {
	addresses := h.svc.GetPieceAddresses()
	if addresses == nil {
		addresses = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pieceAddresses": addresses,
	})
}

func (h *Handler) handlePieceData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pieceData": h.svc.GetPieceData(),
	})
}

func (h *Handler) handlePieceRemixData(w http.ResponseWriter, r *http.Request) {
	remix := h.svc.GetPieceRemixData()
	if remix == nil {
		remix = map[string]*string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pieceRemixData": remix,
	})
}

func (h *Handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"registryAddress": h.svc.RegistryAddress(),
	})
}

func (h *Handler) handleGetPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetPendingPieceData())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStatusResponse(h.svc.Status()))
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AlertsResponse{Alerts: h.svc.Alerts()})
}

func (h *Handler) handleRefreshVault(w http.ResponseWriter, r *http.Request) {
	vault := h.svc.RefreshVaultAddress(r.Context())
	if vault == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Vault not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vaultAddress": vault,
	})
}

func (h *Handler) handleCreatePiece(w http.ResponseWriter, r *http.Request) {
	var req CreatePieceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	ok, err := h.svc.CreateNewPiece(r.Context(), req.PieceData, req.RemixedFrom)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPiece) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "pieceData is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create piece")
		return
	}

	status := http.StatusAccepted
	if !ok {
		status = http.StatusOK
	}
	writeJSON(w, status, CreatePieceResponse{OK: ok})
}

func (h *Handler) handleSetPending(w http.ResponseWriter, r *http.Request) {
	var req PendingPieceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	h.svc.SetPendingPieceData(req.PieceData, req.RemixedFrom)
	writeJSON(w, http.StatusOK, h.svc.GetPendingPieceData())
}

func (h *Handler) handleClearPending(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearPendingPieceData()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSaveAudioGraph(w http.ResponseWriter, r *http.Request) {
	var req AudioGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": h.svc.SaveAudioGraph(r.Context(), req.Graph),
	})
}

func (h *Handler) handleLoadAudioGraph(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	graph := h.svc.LoadAudioGraph(r.Context(), addr)
	if graph == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Audio graph not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"graph": *graph,
	})
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.wallet.Connect(r.Context(), req.Address); err != nil {
		writeWalletError(w, err)
		return
	}
	h.handleWallet(w, r)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.wallet.Disconnect(r.Context()); err != nil {
		writeWalletError(w, err)
		return
	}
	h.handleWallet(w, r)
}

// HandleEvents streams contract info snapshots as server-sent events. The
// first event carries the current snapshot. Only the latest snapshot is kept
// for a slow reader.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	updates := make(chan domain.ContractInfo, 1)
	unsubscribe := h.svc.Subscribe(func(info domain.ContractInfo) {
		for {
			select {
			case updates <- info:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case info := <-updates:
			data, err := json.Marshal(info)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: contract-info\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeWalletError(w http.ResponseWriter, err error) {
	var te *gateway.TonError
	if errors.As(err, &te) {
		writeError(w, http.StatusBadGateway, string(te.Code), te.Message)
		return
	}
	writeError(w, http.StatusBadRequest, string(gateway.CodeWallet), err.Error())
}

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
