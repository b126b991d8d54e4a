package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/echoes/internal/auth"
	"github.com/pendergraft/echoes/internal/config"
)

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var walletAddr string
	var mainnet bool
	var generateToken bool
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an echoes.toml configuration file in the current directory.

The file overlays the environment for the CLI and the daemon: indexing API,
registry address, wallet, storage and sync cadences.

EXAMPLES:
  # Testnet defaults
  echoes config init

  # Follow a wallet and print a fresh bridge token
  echoes config init --wallet EQD... --generate-token

  # Overwrite existing config
  echoes config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(walletAddr, mainnet, generateToken, force)
		},
	}

	cmd.Flags().StringVar(&walletAddr, "wallet", "", "wallet address the daemon connects")
	cmd.Flags().BoolVar(&mainnet, "mainnet", false, "render addresses for mainnet")
	cmd.Flags().BoolVar(&generateToken, "generate-token", false, "print a new bridge token for AUTH_TYPE=token")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the effective configuration and where each part comes from.

EXAMPLES:
  echoes config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(walletAddr string, mainnet, generateToken, force bool) error {
	path := defaultConfigFile
	if cfgFile != "" {
		path = cfgFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content := fmt.Sprintf(`# echoes configuration
# Environment variables are read first; values here override them.

api_url = %q
registry_address = %q
testnet = %t

# Daemon address used by 'echoes status' and 'echoes pending'
bridge = "http://127.0.0.1:8080"

# Wallet the daemon connects on start
wallet = %q

[storage]
type = "sqlite"
path = "./data/echoes.db"

[sync]
poll_interval_ms = 20000
retry_delay_ms = 3000
refresh_delay_ms = 5000
`, config.DefaultAPIURL, config.DefaultRegistryAddress, !mainnet, walletAddr)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)

	if generateToken {
		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Bridge token (not stored, keep it safe):")
		fmt.Println()
		fmt.Printf("   export AUTH_TYPE=token BRIDGE_TOKEN=%s\n", token)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to customize settings\n", path)
	fmt.Println("  2. Run 'echoes auth login' to store an indexing API token")
	fmt.Println("  3. Run 'echoes run' to start the daemon")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --config, --bridge, --token")
	fmt.Println()

	fmt.Println("2. Config file")
	f, path, err := loadConfigFile()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	default:
		fmt.Printf("   Loaded from: %s\n", path)
		if f.APIURL != "" {
			fmt.Printf("   api_url: %s\n", f.APIURL)
		}
		if f.RegistryAddress != "" {
			fmt.Printf("   registry_address: %s\n", f.RegistryAddress)
		}
		if f.Bridge != "" {
			fmt.Printf("   bridge: %s\n", f.Bridge)
		}
		if f.Wallet != "" {
			fmt.Printf("   wallet: %s\n", f.Wallet)
		}
		if f.Storage.Type != "" {
			fmt.Printf("   storage.type: %s\n", f.Storage.Type)
		}
	}
	fmt.Println()

	fmt.Println("3. Environment variables")
	for _, key := range []string{"TON_API_URL", "REGISTRY_ADDRESS", "TON_TESTNET", "WALLET_ADDRESS", "STORAGE_TYPE", "AUTH_TYPE", "ECHOES_BRIDGE"} {
		if v := os.Getenv(key); v != "" {
			fmt.Printf("   %s=%s\n", key, v)
		} else {
			fmt.Printf("   %s=(not set)\n", key)
		}
	}
	for _, key := range []string{"TON_API_TOKEN", "BRIDGE_TOKEN"} {
		if v := os.Getenv(key); v != "" {
			fmt.Printf("   %s=%s\n", key, maskToken(v))
		} else {
			fmt.Printf("   %s=(not set)\n", key)
		}
	}
	fmt.Println()

	fmt.Printf("4. Credentials (%s)\n", credentialsFilePath())
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	case len(creds.APIs) == 0:
		fmt.Println("   (no credentials stored)")
	default:
		for api, cred := range creds.APIs {
			fmt.Printf("   %s: %s\n", api, maskToken(cred.Token))
		}
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
		return nil
	}
	fmt.Printf("   API:       %s\n", cfg.TON.APIURL)
	fmt.Printf("   Registry:  %s\n", cfg.TON.RegistryAddress)
	fmt.Printf("   Testnet:   %t\n", cfg.TON.Testnet)
	fmt.Printf("   Storage:   %s\n", cfg.Storage.Type)
	fmt.Printf("   Bridge:    %s\n", getBridge())
	if cfg.Wallet.Address != "" {
		fmt.Printf("   Wallet:    %s\n", cfg.Wallet.Address)
	}
	if cfg.TON.APIToken != "" {
		fmt.Printf("   API token: %s\n", maskToken(cfg.TON.APIToken))
	} else {
		fmt.Println("   API token: (not set)")
	}

	return nil
}
