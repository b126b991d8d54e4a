// Package syncer keeps the state store in step with the registry contracts
// for the connected wallet: an initial load on connect, a poll for newly
// created pieces, and a refresh after the user submits a transaction.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/echoes/internal/cache"
	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/contracts"
	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/state"
	"github.com/pendergraft/echoes/internal/wallet"
)

// Phase is the engine's position in the connection lifecycle.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseInitialLoad  Phase = "initial_load"
	PhasePolling      Phase = "polling"
)

// errSessionChanged aborts a fetch whose wallet session ended mid-way.
var errSessionChanged = errors.New("wallet session changed")

// Wallet is the part of the wallet service the engine drives.
type Wallet interface {
	IsConnected() bool
	Address() string
	SubscribeToWalletStatus(fn func(wallet.Status)) (unsubscribe func())
	CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) (bool, error)
}

// Notifier surfaces failures of user-initiated actions.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }

// Config holds the engine's cadences.
type Config struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	RefreshDelay time.Duration
}

// NewConfig converts the sync settings.
func NewConfig(c config.SyncConfig) Config {
	return Config{
		PollInterval: c.PollInterval(),
		RetryDelay:   c.RetryDelay(),
		RefreshDelay: c.RefreshDelay(),
	}
}

// Status is a point-in-time view of the engine.
type Status struct {
	Phase         Phase  `json:"phase"`
	Address       string `json:"address,omitempty"`
	Loading       bool   `json:"loading"`
	Refreshing    bool   `json:"refreshing"`
	Polling       bool   `json:"polling"`
	PendingPieces int    `json:"pendingPieces"`
	FailedPieces  int    `json:"failedPieces"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the notifier for failed user actions.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// Engine is the synchronization state machine.
type Engine struct {
	reader   contracts.Reader
	store    *state.Store
	cache    *cache.Cache
	wallet   Wallet
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	poller   *RepeatingTask

	ctx    context.Context
	cancel context.CancelFunc

	// guard orders session switches against writes of user-scoped state.
	// Writers hold it shared and check generation; switches hold it
	// exclusively.
	guard       sync.RWMutex
	user        string
	generation  uint64
	hydratedGen uint64

	persistMu sync.Mutex

	mu         sync.Mutex
	phase      Phase
	fetching   bool
	refreshing bool
	retry      *time.Timer
	refresh    *time.Timer
	pieces     map[string]PieceStatus
	inflight   int
	idle       chan struct{}
	closed     bool
	unsub      func()
}

// New creates an engine. Call Start to begin following the wallet.
func New(reader contracts.Reader, store *state.Store, c *cache.Cache, w Wallet, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		reader: reader,
		store:  store,
		cache:  c,
		wallet: w,
		cfg:    cfg,
		logger: logger.With("component", "syncer"),
		ctx:    ctx,
		cancel: cancel,
		phase:  PhaseDisconnected,
		pieces: make(map[string]PieceStatus),
	}
	e.notifier = NotifierFunc(func(err error) {
		e.logger.Warn("user action failed", "error", err)
	})
	for _, opt := range opts {
		opt(e)
	}
	e.poller = NewRepeatingTask("piece-poll", cfg.PollInterval, e.poll, e.logger)
	return e
}

// Start subscribes to wallet status changes and loads the registry
// parameters.
func (e *Engine) Start() {
	unsub := e.wallet.SubscribeToWalletStatus(e.HandleWalletStatus)
	e.mu.Lock()
	e.unsub = unsub
	e.mu.Unlock()

	e.goTracked(func() {
		e.FetchContractInfo(e.ctx)
	})
}

// HandleWalletStatus reacts to a connect or disconnect event.
func (e *Engine) HandleWalletStatus(st wallet.Status) {
	if st.Connected && st.Address != "" {
		e.connect(st.Address)
		return
	}
	e.disconnect()
}

func (e *Engine) connect(addr string) {
	e.guard.Lock()
	if e.user == addr {
		e.guard.Unlock()
		return
	}
	prev := e.user
	gen := e.switchSessionLocked(addr, PhaseInitialLoad)
	e.guard.Unlock()

	if prev != "" {
		e.endSession(prev)
	}
	e.logger.Info("wallet connected, loading contract state", "user", ton.FormatAddress(addr))

	e.goTracked(func() {
		e.FetchContractInfo(e.ctx)

		e.guard.RLock()
		defer e.guard.RUnlock()
		if e.generation != gen {
			return
		}
		e.setPhase(PhasePolling)
		e.poller.Start(e.ctx)
	})
}

func (e *Engine) disconnect() {
	e.guard.Lock()
	prev := e.user
	e.switchSessionLocked("", PhaseDisconnected)
	e.guard.Unlock()

	e.endSession(prev)
	if prev != "" {
		e.logger.Info("wallet disconnected", "user", ton.FormatAddress(prev))
	}
}

// switchSessionLocked starts a new session generation. Caller holds guard.
func (e *Engine) switchSessionLocked(user string, phase Phase) uint64 {
	e.generation++
	e.user = user

	e.mu.Lock()
	e.phase = phase
	e.pieces = make(map[string]PieceStatus)
	e.mu.Unlock()

	return e.generation
}

// endSession stops polling, drops the cached record of prev and clears the
// user-scoped state.
func (e *Engine) endSession(prev string) {
	e.poller.Stop()
	if prev != "" {
		e.cache.ClearPieces(e.ctx, prev)
	}
	e.store.ResetUser()
}

// FetchContractInfo loads everything from the registry down to the piece
// list and dispatches fetches for unknown pieces. Concurrent calls return nil
// without doing anything. Failures are logged, a retry is scheduled and nil
// is returned.
func (e *Engine) FetchContractInfo(ctx context.Context) *state.ContractSnapshot {
	e.mu.Lock()
	if e.fetching {
		e.mu.Unlock()
		return nil
	}
	e.fetching = true
	e.mu.Unlock()

	start := time.Now()
	for {
		e.store.SetLoading(true)
		user, gen := e.session()
		snap, err := e.fetchAll(ctx, user, gen)
		e.store.SetLoading(false)

		if err == nil {
			if e.endFetch(gen) {
				metrics.SyncFetch("ok")
				e.logger.Debug("contract info fetched", "duration", time.Since(start))
				return snap
			}
			err = errSessionChanged
		}
		if errors.Is(err, errSessionChanged) && ctx.Err() == nil {
			e.logger.Debug("wallet session changed during fetch, restarting")
			continue
		}

		e.mu.Lock()
		e.fetching = false
		e.mu.Unlock()

		metrics.SyncFetch("error")
		e.logger.Error("fetchContractInfo", "error", err, "duration", time.Since(start))
		e.scheduleRetry()
		return nil
	}
}

// endFetch clears the in-flight flag unless the session moved past gen, in
// which case the caller has to fetch again. Checking and clearing under the
// guard means a connect either sees the flag cleared or is picked up here.
func (e *Engine) endFetch(gen uint64) bool {
	e.guard.RLock()
	defer e.guard.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return false
	}
	e.fetching = false
	return true
}

func (e *Engine) fetchAll(ctx context.Context, user string, gen uint64) (*state.ContractSnapshot, error) {
	if user != "" {
		e.hydrate(ctx, user, gen)
	}

	// Sequential on purpose: every call shares the scheduler's budget.
	fees, err := e.reader.GetFeeParams(ctx)
	if err != nil {
		return nil, err
	}
	security, err := e.reader.GetSecurityParams(ctx)
	if err != nil {
		return nil, err
	}
	e.store.Update(func(st *state.ContractSnapshot) {
		st.FeeParams = fees
		st.SecurityParams = security
	})

	if user != "" {
		if err := e.fetchUser(ctx, user, gen); err != nil {
			return nil, err
		}
	}

	snap := e.store.GetState()
	return &snap, nil
}

func (e *Engine) fetchUser(ctx context.Context, user string, gen uint64) error {
	vault, err := e.reader.GetVaultAddress(ctx, user)
	if err != nil {
		return err
	}
	if !e.commit(gen, func(st *state.ContractSnapshot) {
		st.UserVaultAddress = vault
	}) {
		return errSessionChanged
	}
	if vault == nil {
		return nil
	}

	count, err := e.reader.GetPieceCount(ctx, *vault)
	if err != nil {
		return err
	}
	if !e.commit(gen, func(st *state.ContractSnapshot) {
		st.PieceCount = count
	}) {
		return errSessionChanged
	}

	addrs, err := e.reader.GetPieceAddresses(ctx, *vault)
	if err != nil {
		return err
	}
	if !e.commit(gen, func(st *state.ContractSnapshot) {
		st.PieceAddresses = mergeAddresses(addrs, st)
	}) {
		return errSessionChanged
	}

	e.dispatchPieces(gen, addrs)
	return nil
}

// hydrate fills the store from the local cache once per session, before any
// piece data arrives from the network.
func (e *Engine) hydrate(ctx context.Context, user string, gen uint64) {
	e.guard.RLock()
	done := e.hydratedGen == gen
	e.guard.RUnlock()
	if done {
		return
	}

	cached := e.cache.LoadPieces(ctx, user)

	e.guard.Lock()
	defer e.guard.Unlock()
	if e.generation != gen || e.hydratedGen == gen {
		return
	}
	e.hydratedGen = gen
	if cached == nil {
		return
	}
	e.store.Update(func(st *state.ContractSnapshot) {
		st.PieceData = fillMissing(st.PieceData, cached.PieceData)
		st.PieceRemixData = fillMissing(st.PieceRemixData, cached.PieceRemixData)
		if len(st.PieceAddresses) == 0 {
			st.PieceAddresses = append([]string(nil), cached.PieceAddresses...)
		}
		st.PieceAddresses = mergeAddresses(st.PieceAddresses, st)
	})
	e.logger.Info("state hydrated from cache",
		"user", ton.FormatAddress(user),
		"pieces", len(cached.PieceData),
	)
}

// poll is one tick of the piece poll. It returns false once the session is
// gone so the task stops rescheduling.
func (e *Engine) poll(ctx context.Context) bool {
	user, gen := e.session()
	if user == "" || !e.wallet.IsConnected() {
		metrics.SyncPoll("stopped")
		return false
	}

	vault := e.store.GetState().UserVaultAddress
	if vault == nil {
		metrics.SyncPoll("skipped")
		return true
	}

	remote, err := e.reader.GetPieceAddresses(ctx, *vault)
	if err != nil {
		metrics.SyncPoll("error")
		e.logger.Warn("polling for new pieces failed", "error", err)
		return true
	}

	var fresh []string
	if !e.commit(gen, func(st *state.ContractSnapshot) {
		fresh = newAddresses(remote, st.PieceAddresses)
		if len(fresh) > 0 {
			st.PieceAddresses = mergeAddresses(remote, st)
		}
	}) {
		metrics.SyncPoll("stopped")
		return false
	}

	if len(fresh) == 0 {
		metrics.SyncPoll("unchanged")
		return true
	}

	metrics.SyncPoll("discovered")
	e.logger.Info("new pieces discovered", "count", len(fresh))
	e.dispatchPieces(gen, fresh)
	return true
}

// CreateNewPiece submits a create-piece transaction through the wallet. On
// success a full fetch is scheduled after the refresh delay.
func (e *Engine) CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) bool {
	ok, err := e.wallet.CreateNewPiece(ctx, raw, remixedFrom)
	if err != nil {
		e.logger.Error("createNewPiece", "error", err)
		e.notifier.Notify(err)
		return false
	}
	if ok {
		e.scheduleRefresh()
	}
	return ok
}

// RefreshVaultAddress resolves the connected user's vault address again.
func (e *Engine) RefreshVaultAddress(ctx context.Context) (string, bool) {
	user, gen := e.session()
	if user == "" {
		return "", false
	}

	vault, err := e.reader.GetVaultAddress(ctx, user)
	if err != nil {
		e.logger.Error("refreshVaultAddress", "error", err)
		return "", false
	}
	if !e.commit(gen, func(st *state.ContractSnapshot) {
		st.UserVaultAddress = vault
	}) || vault == nil {
		return "", false
	}
	return *vault, true
}

// SaveAudioGraph is not supported by the registry yet.
func (e *Engine) SaveAudioGraph(ctx context.Context, graph string) bool {
	e.logger.Info("save audio graph requested", "bytes", len(graph))
	return false
}

// LoadAudioGraph is not supported by the registry yet.
func (e *Engine) LoadAudioGraph(ctx context.Context, nftAddress string) (string, bool) {
	e.logger.Info("load audio graph requested", "address", nftAddress)
	return "", false
}

// Status reports the engine's current phase and piece task counts.
func (e *Engine) Status() Status {
	user, _ := e.session()

	e.mu.Lock()
	st := Status{
		Phase:      e.phase,
		Address:    user,
		Refreshing: e.refreshing,
	}
	for _, ps := range e.pieces {
		switch ps {
		case PiecePending:
			st.PendingPieces++
		case PieceFailed:
			st.FailedPieces++
		}
	}
	e.mu.Unlock()

	st.Loading = e.store.IsLoading()
	st.Polling = e.poller.Running()
	return st
}

// WaitIdle blocks until no fetch or piece task started by the engine is
// running, or ctx is done. Scheduled retries and refreshes that have not
// fired yet are not waited for.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	if e.inflight == 0 {
		e.mu.Unlock()
		return nil
	}
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the poll and pending timers, cancels in-flight calls and waits
// for running tasks to return.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsub
	if e.retry != nil {
		e.retry.Stop()
	}
	if e.refresh != nil {
		e.refresh.Stop()
	}
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	e.cancel()
	e.poller.Stop()
	e.poller.Wait()
	_ = e.WaitIdle(context.Background())
}

func (e *Engine) scheduleRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.retry != nil {
		return
	}
	e.logger.Info("retrying contract fetch", "delay", e.cfg.RetryDelay)
	e.retry = time.AfterFunc(e.cfg.RetryDelay, func() {
		e.mu.Lock()
		e.retry = nil
		e.mu.Unlock()
		if !e.enter() {
			return
		}
		defer e.leave()
		e.FetchContractInfo(e.ctx)
	})
}

func (e *Engine) scheduleRefresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.refresh != nil {
		return
	}
	e.refreshing = true
	e.refresh = time.AfterFunc(e.cfg.RefreshDelay, func() {
		if !e.enter() {
			return
		}
		defer e.leave()
		e.FetchContractInfo(e.ctx)

		e.mu.Lock()
		e.refresh = nil
		e.refreshing = false
		e.mu.Unlock()
	})
}

// session returns the connected user and the current generation.
func (e *Engine) session() (string, uint64) {
	e.guard.RLock()
	defer e.guard.RUnlock()
	return e.user, e.generation
}

// commit applies fn to the store only while gen is still the current
// session. It reports whether fn ran.
func (e *Engine) commit(gen uint64, fn func(*state.ContractSnapshot)) bool {
	e.guard.RLock()
	defer e.guard.RUnlock()
	if e.generation != gen {
		return false
	}
	e.store.Update(fn)
	return true
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// enter registers a running task. It fails once the engine is closed.
func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
	return true
}

func (e *Engine) leave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if e.inflight == 0 {
		close(e.idle)
	}
}

func (e *Engine) goTracked(fn func()) {
	if !e.enter() {
		return
	}
	go func() {
		defer e.leave()
		fn()
	}()
}
