package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/contracts"
)

// Credentials stores indexing API tokens per API base URL
type Credentials struct {
	APIs map[string]APICredential `yaml:"apis"`
}

// APICredential stores the token for a single indexing API
type APICredential struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name,omitempty"`
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Indexing API credentials",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var apiFlag string
	var tokenFlag string
	var nameFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an indexing API token",
		Long: `Save a token for the chain-indexing API.

The token is stored in ~/.echoes/credentials with secure file permissions and
used whenever TON_API_TOKEN is not set.

EXAMPLES:
  # Interactive login (prompts for the token)
  echoes auth login

  # Login to a specific API
  echoes auth login --api https://tonapi.io/v2/blockchain/accounts

  # Non-interactive login (for CI)
  echoes auth login --api-token $TON_API_TOKEN
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(apiFlag, tokenFlag, nameFlag)
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "indexing API URL (default from config)")
	cmd.Flags().StringVar(&tokenFlag, "api-token", "", "API token (prompts if not provided)")
	cmd.Flags().StringVar(&nameFlag, "name", "", "label for the token")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var apiFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear credentials",
		Long: `Remove saved credentials for an indexing API.

EXAMPLES:
  echoes auth logout
  echoes auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(apiFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "indexing API URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}
}

// defaultAPI returns the API URL and registry from the environment and config
// file without requiring a valid configuration.
func defaultAPI() (string, string) {
	cfg, _ := config.Load()
	if cfg == nil {
		return config.DefaultAPIURL, config.DefaultRegistryAddress
	}
	if f, _, err := loadConfigFile(); err == nil {
		f.Apply(cfg)
	}
	return cfg.TON.APIURL, cfg.TON.RegistryAddress
}

func runAuthLogin(apiURL, token, name string) error {
	registry := config.DefaultRegistryAddress
	if apiURL == "" {
		apiURL, registry = defaultAPI()
	}

	if token == "" {
		fmt.Printf("Enter API token for %s: ", apiURL)

		stdinFd := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFd) {
			b, err := term.ReadPassword(stdinFd)
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read API token: %w", err)
			}
			token = string(b)
		} else {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read API token: %w", err)
			}
			token = line
		}
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("API token cannot be empty")
	}

	fmt.Printf("Validating token with %s...\n", apiURL)
	valid, err := validateAPIToken(apiURL, registry, token)
	if err != nil {
		return fmt.Errorf("failed to validate token: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid API token")
	}

	if err := saveCredential(apiURL, APICredential{Token: token, Name: name}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Token saved for %s (token: %s)\n", apiURL, maskToken(token))
	fmt.Printf("   Credentials saved to %s\n", credentialsFilePath())

	return nil
}

func runAuthLogout(apiURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("✅ All credentials cleared")
		return nil
	}

	if apiURL == "" {
		apiURL, _ = defaultAPI()
	}

	creds, err := loadCredentials()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		fmt.Printf("No credentials found for %s\n", apiURL)
		return nil
	}
	if _, exists := creds.APIs[apiURL]; !exists {
		fmt.Printf("No credentials found for %s\n", apiURL)
		return nil
	}

	delete(creds.APIs, apiURL)

	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Logged out from %s\n", apiURL)
	return nil
}

func runAuthStatus() error {
	creds, err := loadCredentials()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if creds == nil || len(creds.APIs) == 0 {
		fmt.Println("No API tokens stored")
		fmt.Println("\nRun 'echoes auth login' to store one")
		return nil
	}

	fmt.Println("Stored API tokens:")
	for api, cred := range creds.APIs {
		if cred.Name != "" {
			fmt.Printf("  • %s (%s, token: %s)\n", api, cred.Name, maskToken(cred.Token))
		} else {
			fmt.Printf("  • %s (token: %s)\n", api, maskToken(cred.Token))
		}
	}

	return nil
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".echoes"
	}
	return filepath.Join(home, ".echoes")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.APIs == nil {
		creds.APIs = make(map[string]APICredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(apiURL string, cred APICredential) error {
	creds, err := loadCredentials()
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		creds = &Credentials{APIs: make(map[string]APICredential)}
	}

	creds.APIs[apiURL] = cred
	return writeCredentials(creds)
}

func getCredential(apiURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.APIs[apiURL].Token
}

// validateAPIToken runs one registry getter with the token. Only an explicit
// 401 or 403 rejects it.
func validateAPIToken(apiURL, registry, token string) (bool, error) {
	u := fmt.Sprintf("%s/%s/methods/%s", strings.TrimRight(apiURL, "/"), url.PathEscape(registry), contracts.MethodFeeParams)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	}
	return true, nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
