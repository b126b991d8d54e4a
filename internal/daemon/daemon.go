// Package daemon assembles the running echoes stack from its configuration:
// storage, the rate-limited chain reader, the wallet session, the sync
// engine and the bridge server.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	bridgeDomain "github.com/pendergraft/echoes/internal/bridge/domain"
	"github.com/pendergraft/echoes/internal/cache"
	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/contracts"
	"github.com/pendergraft/echoes/internal/gateway"
	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/scheduler"
	"github.com/pendergraft/echoes/internal/server"
	"github.com/pendergraft/echoes/internal/state"
	"github.com/pendergraft/echoes/internal/storage"
	"github.com/pendergraft/echoes/internal/syncer"
	"github.com/pendergraft/echoes/internal/wallet"
)

// Daemon owns every long-lived component. Close releases them in reverse
// order of construction.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store   storage.Store
	sched   *scheduler.Scheduler
	session *wallet.LocalSession
	wallet  *wallet.Service
	engine  *syncer.Engine
	bridge  bridgeDomain.Service
	server  *server.Server
}

// New builds the stack. Storage is migrated before anything reads it.
// version is reported on the bridge's /version endpoint.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*Daemon, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	d := &Daemon{cfg: cfg, logger: logger, store: store}

	// One scheduler is shared by every getter call
	d.sched = scheduler.New(scheduler.Config{
		MinInterval:   cfg.TON.MinInterval(),
		OnQueueChange: metrics.SchedulerQueueDepth,
	}, logger)

	gwOpts := []gateway.Option{
		gateway.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TON.HTTPTimeout) * time.Second}),
	}
	if cfg.TON.APIToken != "" {
		gwOpts = append(gwOpts, gateway.WithToken(cfg.TON.APIToken))
	}
	gw := gateway.New(cfg.TON.APIURL, d.sched, logger, gwOpts...)

	registry := contracts.New(gw, cfg.TON.RegistryAddress, ton.Network{Testnet: cfg.TON.Testnet}, logger)
	reader := contracts.LoggingMiddleware(logger)(registry)

	// Transactions go to the outbox and the transaction log
	d.session = wallet.NewLocalSession(cfg.Wallet.Address, wallet.MultiSink{
		wallet.NewFileSink(cfg.Wallet.OutboxDir),
		wallet.NewStoreSink(store),
	}, logger)
	d.wallet, err = wallet.NewService(d.session, wallet.NewServiceConfig(cfg), logger)
	if err != nil {
		d.sched.Close()
		store.Close()
		return nil, fmt.Errorf("initializing wallet: %w", err)
	}

	// The bridge collects the engine's alerts, so the notifier is bound
	// once both exist.
	snapshots := state.New()
	var alerts syncer.Notifier
	d.engine = syncer.New(
		reader,
		snapshots,
		cache.New(store, cfg.Cache.KeyPrefix, logger),
		d.wallet,
		syncer.NewConfig(cfg.Sync),
		logger,
		syncer.WithNotifier(syncer.NotifierFunc(func(err error) {
			alerts.Notify(err)
		})),
	)
	core := bridgeDomain.NewService(d.engine, snapshots, d.wallet, registry.Address(), logger)
	alerts = core
	d.bridge = bridgeDomain.LoggingMiddleware(logger)(core)

	d.server = server.New(cfg, server.Deps{
		Bridge:       d.bridge,
		Wallet:       walletController{svc: d.wallet, session: d.session},
		Transactions: store,
		Ready: func(ctx context.Context) error {
			_, err := store.ListPieceKeys(ctx, cfg.Cache.KeyPrefix)
			return err
		},
		Version: version,
	}, logger)

	return d, nil
}

// Start begins syncing and connects the configured wallet, if any. A failed
// connect is logged; the bridge can still connect another address later.
func (d *Daemon) Start(ctx context.Context) {
	d.engine.Start()

	if d.cfg.Wallet.Address == "" {
		d.logger.Info("no wallet configured, waiting for a connect request")
		return
	}
	if err := d.wallet.Connect(ctx); err != nil {
		d.logger.Error("connecting configured wallet", "error", err)
	}
}

// Handler returns the bridge HTTP handler.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler()
}

func (d *Daemon) Bridge() bridgeDomain.Service { return d.bridge }

func (d *Daemon) Engine() *syncer.Engine { return d.engine }

func (d *Daemon) Store() storage.Store { return d.store }

// Close stops the engine before the wallet and scheduler it depends on,
// then closes storage.
func (d *Daemon) Close() error {
	d.engine.Close()
	d.wallet.Close()
	d.sched.Close()
	return d.store.Close()
}

// walletController lets the bridge connect the local session as any address.
type walletController struct {
	svc     *wallet.Service
	session *wallet.LocalSession
}

func (c walletController) Connect(ctx context.Context, address string) error {
	if address == "" {
		return c.svc.Connect(ctx)
	}
	if err := c.session.ConnectAs(ctx, address); err != nil {
		return gateway.NewError(gateway.CodeWallet, "WalletService.connect", err)
	}
	return nil
}

func (c walletController) Disconnect(ctx context.Context) error {
	return c.svc.Disconnect(ctx)
}
