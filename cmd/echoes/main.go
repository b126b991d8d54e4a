package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pendergraft/echoes/internal/cli"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/daemon"
	"github.com/pendergraft/echoes/internal/observability/metrics"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := cli.NewRootCmd(version)
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the sync daemon and bridge server",
		Long: `Start the daemon: connect the configured wallet, keep its pieces in sync
with the EchoRegistry contracts and serve them over the bridge API.

EXAMPLES:
  WALLET_ADDRESS=EQD... echoes run

  # Token-protected write actions
  AUTH_TYPE=token BRIDGE_TOKEN=ech_... echoes run
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := setupLogger(cfg)
	defer logCloser.Close()
	logger.Info("starting echoes",
		"version", version,
		"registry", cfg.TON.RegistryAddress,
		"testnet", cfg.TON.Testnet,
		"storage", cfg.Storage.Type,
	)

	metrics.Init(cfg.Metrics.Enabled, "echoes")

	ctx := context.Background()
	d, err := daemon.New(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	d.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.Server.Enabled {
		sig := <-quit
		logger.Info("shutting down", "signal", sig)
		return nil
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      d.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("bridge listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("daemon stopped")
	return nil
}

// setupLogger builds the daemon logger. With LOG_FILE set, records are also
// written to a rotated file.
func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)

	if cfg.Logging.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
		closer = rotated
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
