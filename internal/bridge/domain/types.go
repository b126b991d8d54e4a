// Package domain contains the bridge facade exposed to the embedded
// application.
package domain

import (
	"errors"
	"time"

	"github.com/pendergraft/echoes/internal/contracts"
	"github.com/pendergraft/echoes/internal/state"
)

// Common errors returned by the bridge service.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrEmptyPiece     = errors.New("piece data is empty")
)

// ContractInfo is the snapshot handed to the embedded application.
type ContractInfo struct {
	FeeParams        *contracts.FeeParams      `json:"feeParams"`
	SecurityParams   *contracts.SecurityParams `json:"securityParams"`
	UserVaultAddress *string                   `json:"userVaultAddress"`
	PieceCount       *uint64                   `json:"pieceCount"`
	PieceAddresses   []string                  `json:"pieceAddresses"`
	PieceData        map[string]*string        `json:"pieceData"`
	PieceRemixData   map[string]*string        `json:"pieceRemixData"`
	Loading          bool                      `json:"loading"`
}

// NewContractInfo converts a state snapshot.
func NewContractInfo(s state.ContractSnapshot, loading bool) ContractInfo {
	return ContractInfo{
		FeeParams:        s.FeeParams,
		SecurityParams:   s.SecurityParams,
		UserVaultAddress: s.UserVaultAddress,
		PieceCount:       s.PieceCount,
		PieceAddresses:   s.PieceAddresses,
		PieceData:        s.PieceData,
		PieceRemixData:   s.PieceRemixData,
		Loading:          loading,
	}
}

// PendingPiece is piece data staged by the UI for the embedded application.
type PendingPiece struct {
	PieceData   *string `json:"pieceData"`
	RemixedFrom *string `json:"remixedFrom"`
}

// Alert is a user-facing failure of a user-initiated action.
type Alert struct {
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Time    time.Time `json:"time"`
}
