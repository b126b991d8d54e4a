// Package transport provides HTTP request/response types for the bridge.
package transport

import (
	"github.com/pendergraft/echoes/internal/bridge/domain"
	"github.com/pendergraft/echoes/internal/syncer"
)

// CreatePieceRequest is the HTTP request body for creating a piece.
type CreatePieceRequest struct {
	PieceData   string `json:"pieceData"`
	RemixedFrom string `json:"remixedFrom,omitempty"`
}

// CreatePieceResponse reports whether the wallet accepted the transaction.
type CreatePieceResponse struct {
	OK bool `json:"ok"`
}

// PendingPieceRequest is the HTTP request body for staging a piece.
type PendingPieceRequest struct {
	PieceData   *string `json:"pieceData"`
	RemixedFrom *string `json:"remixedFrom"`
}

// AudioGraphRequest is the HTTP request body for saving an audio graph.
type AudioGraphRequest struct {
	Graph string `json:"graph"`
}

// ConnectRequest optionally names the wallet address to connect as.
type ConnectRequest struct {
	Address string `json:"address,omitempty"`
}

// WalletResponse describes the wallet connection.
type WalletResponse struct {
	Connected bool    `json:"connected"`
	Address   *string `json:"address"`
}

// StatusResponse is the sync engine status.
type StatusResponse struct {
	Phase         string  `json:"phase"`
	Address       *string `json:"address"`
	Loading       bool    `json:"loading"`
	Refreshing    bool    `json:"refreshing"`
	Polling       bool    `json:"polling"`
	PendingPieces int     `json:"pendingPieces"`
	FailedPieces  int     `json:"failedPieces"`
}

// NewStatusResponse converts a sync engine status.
func NewStatusResponse(s syncer.Status) StatusResponse {
	resp := StatusResponse{
		Phase:         string(s.Phase),
		Loading:       s.Loading,
		Refreshing:    s.Refreshing,
		Polling:       s.Polling,
		PendingPieces: s.PendingPieces,
		FailedPieces:  s.FailedPieces,
	}
	if s.Address != "" {
		addr := s.Address
		resp.Address = &addr
	}
	return resp
}

// AlertsResponse lists recent alerts.
type AlertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}
