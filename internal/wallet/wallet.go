// Package wallet owns the wallet-connect session and builds the create-piece
// transactions submitted through it.
package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/gateway"
	"github.com/pendergraft/echoes/internal/observability/metrics"
)

// TON Connect network identifiers.
const (
	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

// ServiceConfig configures the transactions a Service builds.
type ServiceConfig struct {
	RegistryAddress string
	ValidFor        time.Duration
	AmountTON       string
	Testnet         bool
}

// NewServiceConfig derives a ServiceConfig from the loaded configuration.
func NewServiceConfig(cfg *config.Config) ServiceConfig {
	return ServiceConfig{
		RegistryAddress: cfg.TON.RegistryAddress,
		ValidFor:        time.Duration(cfg.Wallet.TxValidSecs) * time.Second,
		AmountTON:       cfg.Wallet.TxAmountTON,
		Testnet:         cfg.TON.Testnet,
	}
}

// Service wraps a Session with status fan-out and transaction building.
type Service struct {
	session  Session
	registry string
	validFor time.Duration
	amount   string
	network  string
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []statusListener
	nextID    int
	unsub     func()
}

// NewService creates a Service over session, which may be nil when no wallet
// is available. The attached amount is converted to nanotons once here.
func NewService(session Session, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	coins, err := tlb.FromTON(cfg.AmountTON)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction amount %q: %w", cfg.AmountTON, err)
	}

	network := NetworkMainnet
	if cfg.Testnet {
		network = NetworkTestnet
	}

	s := &Service{
		session:  session,
		registry: cfg.RegistryAddress,
		validFor: cfg.ValidFor,
		amount:   coins.Nano().String(),
		network:  network,
		now:      time.Now,
		logger:   logger.With("component", "wallet"),
	}
	if session != nil {
		s.unsub = session.OnStatusChange(s.dispatch)
	}
	return s, nil
}

// Connect opens the wallet session.
func (s *Service) Connect(ctx context.Context) error {
	if s.session == nil {
		return gateway.NewError(gateway.CodeWallet, "TonConnect not initialized", nil)
	}
	if err := s.session.Connect(ctx); err != nil {
		s.logger.Error("error connecting wallet", "error", err)
		return s.walletError(err, "WalletService.connect")
	}
	return nil
}

// Disconnect closes the wallet session.
func (s *Service) Disconnect(ctx context.Context) error {
	if s.session == nil {
		return gateway.NewError(gateway.CodeWallet, "TonConnect not initialized", nil)
	}
	if err := s.session.Disconnect(ctx); err != nil {
		s.logger.Error("error disconnecting wallet", "error", err)
		return s.walletError(err, "WalletService.disconnect")
	}
	return nil
}

func (s *Service) IsConnected() bool {
	return s.session != nil && s.session.Connected()
}

// Address returns the connected wallet address, or "" when disconnected.
func (s *Service) Address() string {
	if !s.IsConnected() {
		return ""
	}
	return s.session.Address()
}

// Status returns the current connection state.
func (s *Service) Status() Status {
	if !s.IsConnected() {
		return Status{}
	}
	return Status{Connected: true, Address: s.session.Address()}
}

// SubscribeToWalletStatus calls fn with the current status and then on every
// change.
func (s *Service) SubscribeToWalletStatus(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, statusListener{id: id, fn: fn})
	s.mu.Unlock()

	fn(s.Status())

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l statusListener) bool {
			return l.id == id
		})
	}
}

// Close detaches from the session.
func (s *Service) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

// BuildTransaction builds the create-piece transaction request.
func (s *Service) BuildTransaction(raw []byte, remixedFrom *address.Address) (Transaction, error) {
	body, err := ton.BuildCreatePiece(ton.CreatePiece{PieceData: raw, RemixedFrom: remixedFrom})
	if err != nil {
		return Transaction{}, gateway.NewError(gateway.CodeContract, "building create piece message", err)
	}

	return Transaction{
		ValidUntil: s.now().Add(s.validFor).Unix(),
		Network:    s.network,
		Messages: []Message{{
			Address: s.registry,
			Amount:  s.amount,
			Payload: base64.StdEncoding.EncodeToString(body.ToBOC()),
		}},
	}, nil
}

// CreateNewPiece submits a create-piece transaction and reports whether the
// wallet accepted it.
func (s *Service) CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) (bool, error) {
	if !s.IsConnected() {
		metrics.WalletTransaction("rejected")
		return false, gateway.NewError(gateway.CodeWallet, "Wallet not connected", nil)
	}

	tx, err := s.BuildTransaction(raw, remixedFrom)
	if err != nil {
		metrics.WalletTransaction("error")
		return false, err
	}

	id, err := s.session.SendTransaction(ctx, tx)
	if err != nil {
		metrics.WalletTransaction("error")
		s.logger.Error("error creating piece", "error", err)
		return false, s.walletError(err, "WalletService.createNewPiece")
	}

	metrics.WalletTransaction("sent")
	s.logger.Info("create piece transaction sent",
		"id", id,
		"bytes", len(raw),
		"remix", remixedFrom != nil,
	)
	return true, nil
}

func (s *Service) dispatch(st Status) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	emit(listeners, st)
}

func (s *Service) walletError(err error, context string) *gateway.TonError {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrNoAddress) || errors.Is(err, ErrExpired) {
		return gateway.NewError(gateway.CodeWallet, context, err)
	}
	return gateway.HandleError(err, context)
}
