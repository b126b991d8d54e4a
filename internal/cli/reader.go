package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/contracts"
	"github.com/pendergraft/echoes/internal/gateway"
	"github.com/pendergraft/echoes/internal/scheduler"
)

// chainReader is a one-shot reader over the indexing API, sharing the same
// call spacing as the daemon.
type chainReader struct {
	contracts.Reader
	registry string
	sched    *scheduler.Scheduler
}

func (r *chainReader) Close() {
	r.sched.Close()
}

func newChainReader(cfg *config.Config, logger *slog.Logger) *chainReader {
	sched := scheduler.New(scheduler.Config{MinInterval: cfg.TON.MinInterval()}, logger)

	opts := []gateway.Option{
		gateway.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TON.HTTPTimeout) * time.Second}),
	}
	if cfg.TON.APIToken != "" {
		opts = append(opts, gateway.WithToken(cfg.TON.APIToken))
	}
	gw := gateway.New(cfg.TON.APIURL, sched, logger, opts...)

	network := ton.Network{Testnet: cfg.TON.Testnet}
	c := contracts.New(gw, cfg.TON.RegistryAddress, network, logger)

	return &chainReader{
		Reader:   contracts.LoggingMiddleware(logger)(c),
		registry: c.Address(),
		sched:    sched,
	}
}

// openReader loads the configuration and builds a reader.
func openReader() (*config.Config, *chainReader, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, newChainReader(cfg, cliLogger()), nil
}

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}
