package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/validation"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "echoes.toml"

// cliVersion is the release this binary was built as.
var cliVersion = validation.DevVersion

var (
	cfgFile     string
	bridgeURL   string
	bridgeToken string
	verbose     bool
)

// NewRootCmd builds the echoes command tree. The daemon command is added by
// the binary.
func NewRootCmd(version string) *cobra.Command {
	cliVersion = version
	rootCmd := &cobra.Command{
		Use:           "echoes",
		Short:         "EchoRegistry client daemon and tools",
		Long:          `echoes follows a wallet's pieces on the EchoRegistry contracts and serves them to the embedded application.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: echoes.toml when present)")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "bridge URL of a running daemon")
	rootCmd.PersistentFlags().StringVar(&bridgeToken, "token", "", "bridge token for write actions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log gateway calls to stderr")

	rootCmd.AddCommand(createInfoCmd())
	rootCmd.AddCommand(createVaultCmd())
	rootCmd.AddCommand(createPiecesCmd())
	rootCmd.AddCommand(createPieceCmd())
	rootCmd.AddCommand(createCreateCmd())
	rootCmd.AddCommand(createCacheCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createPendingCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createAuthCmd())

	return rootCmd
}

// LoadConfig reads the environment, then overlays the config file. The
// indexing API token falls back to saved credentials.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	f, _, err := loadConfigFile()
	switch {
	case err == nil:
		f.Apply(cfg)
	case !os.IsNotExist(err):
		return nil, err
	}

	if cfg.TON.APIToken == "" {
		cfg.TON.APIToken = getCredential(cfg.TON.APIURL)
	}

	return cfg, cfg.Validate()
}

// loadConfigFile returns the overlay file and the path it was read from.
func loadConfigFile() (*config.File, string, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return nil, "", os.ErrNotExist
		}
		path = defaultConfigFile
	}

	f, err := config.ReadFile(path)
	if err != nil {
		// An explicit --config must exist, so its absence is not ErrNotExist.
		return nil, path, fmt.Errorf("reading %s: %w", path, err)
	}
	return f, path, nil
}

// getBridge returns the daemon URL from flag, env, config file, or the
// daemon's default listen address.
func getBridge() string {
	if bridgeURL != "" {
		return bridgeURL
	}

	if env := os.Getenv("ECHOES_BRIDGE"); env != "" {
		return env
	}

	if f, _, err := loadConfigFile(); err == nil && f.Bridge != "" {
		return f.Bridge
	} else if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config file: %v\n", err)
	}

	return "http://127.0.0.1:8080"
}

// getBridgeToken returns the bridge token from flag or env.
func getBridgeToken() string {
	if bridgeToken != "" {
		return bridgeToken
	}
	return os.Getenv("BRIDGE_TOKEN")
}

// cliLogger logs to stderr so command output stays parseable.
func cliLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
