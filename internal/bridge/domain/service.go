package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
	"github.com/pendergraft/echoes/internal/state"
	"github.com/pendergraft/echoes/internal/syncer"
)

// maxAlerts bounds the alert history.
const maxAlerts = 20

// Service defines the bridge interface.
type Service interface {
	// Getters over the current state.
	GetContractInfo() ContractInfo
	IsWalletConnected() bool
	GetUserAddress() *string
	GetUserVaultAddress() *string
	GetPieceAddresses() []string
	GetPieceData() map[string]*string
	GetPieceRemixData() map[string]*string
	RegistryAddress() string
	Status() syncer.Status

	// Actions.
	RefreshVaultAddress(ctx context.Context) *string
	SaveAudioGraph(ctx context.Context, graph string) bool
	LoadAudioGraph(ctx context.Context, nftAddress string) *string
	CreateNewPiece(ctx context.Context, pieceData, remixedFrom string) (bool, error)

	// Pending piece slot.
	SetPendingPieceData(pieceData, remixedFrom *string)
	GetPendingPieceData() PendingPiece
	ClearPendingPieceData()

	// Observation.
	Subscribe(fn func(ContractInfo)) (unsubscribe func())
	Alerts() []Alert
}

// Engine is the part of the sync engine the bridge drives.
type Engine interface {
	RefreshVaultAddress(ctx context.Context) (string, bool)
	SaveAudioGraph(ctx context.Context, graph string) bool
	LoadAudioGraph(ctx context.Context, nftAddress string) (string, bool)
	CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) bool
	Status() syncer.Status
}

// Wallet reports the wallet connection.
type Wallet interface {
	IsConnected() bool
	Address() string
}

// service implements the Service interface.
type service struct {
	engine   Engine
	store    *state.Store
	wallet   Wallet
	registry string
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   PendingPiece

	alertsMu sync.Mutex
	alerts   []Alert
}

// NewService creates a new bridge service.
func NewService(engine Engine, store *state.Store, wallet Wallet, registryAddress string, logger *slog.Logger) *service {
	return &service{
		engine:   engine,
		store:    store,
		wallet:   wallet,
		registry: registryAddress,
		logger:   logger.With("component", "bridge"),
	}
}

func (s *service) GetContractInfo() ContractInfo {
	return NewContractInfo(s.store.GetState(), s.store.IsLoading())
}

func (s *service) IsWalletConnected() bool {
	return s.wallet.IsConnected()
}

func (s *service) GetUserAddress() *string {
	if !s.wallet.IsConnected() {
		return nil
	}
	addr := s.wallet.Address()
	if addr == "" {
		return nil
	}
	return &addr
}

func (s *service) GetUserVaultAddress() *string {
	return s.store.GetState().UserVaultAddress
}

func (s *service) GetPieceAddresses() []string {
	return s.store.GetState().PieceAddresses
}

// GetPieceData never returns nil so callers can index it directly.
func (s *service) GetPieceData() map[string]*string {
	data := s.store.GetState().PieceData
	if data == nil {
		return map[string]*string{}
	}
	return data
}

func (s *service) GetPieceRemixData() map[string]*string {
	return s.store.GetState().PieceRemixData
}

func (s *service) RegistryAddress() string {
	return s.registry
}

func (s *service) Status() syncer.Status {
	return s.engine.Status()
}

func (s *service) RefreshVaultAddress(ctx context.Context) *string {
	vault, ok := s.engine.RefreshVaultAddress(ctx)
	if !ok {
		return nil
	}
	return &vault
}

func (s *service) SaveAudioGraph(ctx context.Context, graph string) bool {
	return s.engine.SaveAudioGraph(ctx, graph)
}

func (s *service) LoadAudioGraph(ctx context.Context, nftAddress string) *string {
	graph, ok := s.engine.LoadAudioGraph(ctx, nftAddress)
	if !ok {
		return nil
	}
	return &graph
}

// CreateNewPiece submits pieceData. An unparsable remixedFrom is logged and
// the piece is submitted without a remix parent.
func (s *service) CreateNewPiece(ctx context.Context, pieceData, remixedFrom string) (bool, error) {
	if pieceData == "" {
		return false, ErrEmptyPiece
	}

	var parent *address.Address
	if remixedFrom != "" {
		addr, err := ton.ParseAny(remixedFrom)
		if err != nil {
			s.logger.Error("invalid remixedFrom address", "address", remixedFrom, "error", err)
		} else {
			parent = addr
		}
	}

	return s.engine.CreateNewPiece(ctx, []byte(pieceData), parent), nil
}

func (s *service) SetPendingPieceData(pieceData, remixedFrom *string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = PendingPiece{PieceData: pieceData, RemixedFrom: remixedFrom}
}

func (s *service) GetPendingPieceData() PendingPiece {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pending
}

func (s *service) ClearPendingPieceData() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = PendingPiece{}
}

// Subscribe calls fn with the current contract info and after every change.
// fn runs synchronously inside the state store's notification and must not
// block.
func (s *service) Subscribe(fn func(ContractInfo)) func() {
	return s.store.Subscribe(func(snap state.ContractSnapshot) {
		fn(NewContractInfo(snap, s.store.IsLoading()))
	})
}

// Notify records err as an alert. It satisfies syncer.Notifier.
func (s *service) Notify(err error) {
	alert := Alert{Message: err.Error(), Time: time.Now().UTC()}
	var te *gateway.TonError
	if errors.As(err, &te) {
		alert.Code = string(te.Code)
	}

	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()
	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-maxAlerts:]
	}
}

// Alerts returns recorded alerts, oldest first.
func (s *service) Alerts() []Alert {
	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()
	return append([]Alert(nil), s.alerts...)
}
