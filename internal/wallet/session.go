package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/config"
)

var (
	// ErrNotConnected is returned when an operation needs a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNoAddress is returned by Connect when no address is configured.
	ErrNoAddress = errors.New("no wallet address configured")
	// ErrExpired is returned for a transaction whose validity window has passed.
	ErrExpired = errors.New("transaction expired")
)

// Status is the connection state reported by a session.
type Status struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Message is one outgoing message of a transaction request.
type Message struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Payload string `json:"payload,omitempty"`
}

// Transaction is a TON Connect sendTransaction request.
type Transaction struct {
	ValidUntil int64     `json:"validUntil"`
	Network    string    `json:"network,omitempty"`
	From       string    `json:"from,omitempty"`
	Messages   []Message `json:"messages"`
}

// Session is a wallet-connect session.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
	Address() string
	OnStatusChange(fn func(Status)) (unsubscribe func())
	SendTransaction(ctx context.Context, tx Transaction) (string, error)
}

// SessionConfig is what a wallet-connect UI needs to open a session.
type SessionConfig struct {
	ManifestURL string `json:"manifestUrl"`
	Theme       string `json:"theme"`
	ReturnURL   string `json:"returnUrl,omitempty"`
}

// NewSessionConfig builds the session options. The return URL is only
// meaningful inside a host container and is omitted otherwise.
func NewSessionConfig(cfg config.WalletConfig) SessionConfig {
	sc := SessionConfig{
		ManifestURL: cfg.ManifestURL,
		Theme:       cfg.Theme,
	}
	if cfg.HostContainer {
		sc.ReturnURL = cfg.ReturnURL
	}
	return sc
}

// LocalSession is an operator-driven session for headless use. It connects a
// configured address and hands transactions to a sink for out-of-band
// signing.
type LocalSession struct {
	mu        sync.Mutex
	address   string
	connected bool
	listeners []statusListener
	nextID    int

	defaultAddress string
	sink           TransactionSink
	now            func() time.Time
	logger         *slog.Logger
}

type statusListener struct {
	id int
	fn func(Status)
}

// NewLocalSession creates a disconnected session. Connect uses address,
// which may be empty when only ConnectAs is used.
func NewLocalSession(address string, sink TransactionSink, logger *slog.Logger) *LocalSession {
	return &LocalSession{
		defaultAddress: address,
		sink:           sink,
		now:            time.Now,
		logger:         logger.With("component", "wallet-session"),
	}
}

// Connect connects the configured address.
func (s *LocalSession) Connect(ctx context.Context) error {
	if s.defaultAddress == "" {
		return ErrNoAddress
	}
	return s.ConnectAs(ctx, s.defaultAddress)
}

// ConnectAs connects addr, disconnecting any other address first so
// listeners always see the previous session end.
func (s *LocalSession) ConnectAs(ctx context.Context, addr string) error {
	raw, err := ton.NormalizeRaw(addr)
	if err != nil {
		return fmt.Errorf("invalid wallet address: %w", err)
	}

	s.mu.Lock()
	if s.connected && s.address == raw {
		s.mu.Unlock()
		return nil
	}
	var events []Status
	if s.connected {
		events = append(events, Status{})
	}
	s.connected = true
	s.address = raw
	events = append(events, Status{Connected: true, Address: raw})
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.logger.Info("wallet connected", "address", ton.FormatAddress(raw))
	for _, ev := range events {
		emit(listeners, ev)
	}
	return nil
}

// Disconnect ends the session. Disconnecting an idle session is a no-op.
func (s *LocalSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	prev := s.address
	s.connected = false
	s.address = ""
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.logger.Info("wallet disconnected", "address", ton.FormatAddress(prev))
	emit(listeners, Status{})
	return nil
}

func (s *LocalSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *LocalSession) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// OnStatusChange registers fn for connect and disconnect events.
func (s *LocalSession) OnStatusChange(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, statusListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l statusListener) bool {
			return l.id == id
		})
	}
}

// SendTransaction hands tx to the sink and returns the request ID.
func (s *LocalSession) SendTransaction(ctx context.Context, tx Transaction) (string, error) {
	s.mu.Lock()
	connected, from := s.connected, s.address
	s.mu.Unlock()

	if !connected {
		return "", ErrNotConnected
	}
	if tx.ValidUntil <= s.now().Unix() {
		return "", ErrExpired
	}
	if s.sink == nil {
		return "", errors.New("no transaction sink configured")
	}

	tx.From = from
	req := Request{
		ID:          uuid.New().String(),
		From:        from,
		Transaction: tx,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.sink.Submit(ctx, req); err != nil {
		return "", fmt.Errorf("submitting transaction: %w", err)
	}

	s.logger.Info("transaction handed off for signing",
		"id", req.ID,
		"from", ton.FormatAddress(from),
		"valid_until", tx.ValidUntil,
	)
	return req.ID, nil
}

func emit(listeners []statusListener, st Status) {
	for _, l := range listeners {
		l.fn(st)
	}
}
