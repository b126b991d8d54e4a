package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the indexing API and the registry contract.
const (
	DefaultAPIURL          = "https://testnet.tonapi.io/v2/blockchain/accounts"
	DefaultRegistryAddress = "0:f1fa839dd70c72f2aa33dbad6a16804a97e0ede5abcc75d25981da66942b3d78"
	DefaultManifestURL     = "https://infinite-echoes.app/tonconnect-manifest.json"
	DefaultCacheKeyPrefix  = "echoes_pieces_"
)

// Config holds all configuration for the daemon
type Config struct {
	Server    ServerConfig
	TON       TONConfig
	Sync      SyncConfig
	Wallet    WalletConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
}

// ServerConfig holds bridge HTTP server configuration
type ServerConfig struct {
	Enabled        bool
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// TONConfig holds settings for the chain-indexing API
type TONConfig struct {
	APIURL          string
	APIToken        string
	RegistryAddress string
	Testnet         bool
	MinIntervalMS   int
	HTTPTimeout     int // seconds
}

// SyncConfig holds synchronization cadences
type SyncConfig struct {
	PollIntervalMS int
	RetryDelayMS   int
	RefreshDelayMS int
}

// WalletConfig holds wallet session settings
type WalletConfig struct {
	Address       string
	ManifestURL   string
	Theme         string
	ReturnURL     string
	HostContainer bool
	OutboxDir     string
	TxValidSecs   int
	TxAmountTON   string
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite", "postgres", "leveldb" or "memory"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	LevelDB  LevelDBConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LevelDBConfig holds LevelDB settings
type LevelDBConfig struct {
	Path string
}

// CacheConfig holds local piece cache settings
type CacheConfig struct {
	KeyPrefix string
}

// AuthConfig holds authentication settings for bridge write actions
type AuthConfig struct {
	Type  string // "none" or "token"
	Token string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string
	Format     string // "text" or "json"
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled             bool
	RequestsPerMin      int
	WriteRequestsPerMin int
	BurstSize           int
	CleanupMinutes      int
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Enabled:        getEnvBool("BRIDGE_ENABLED", true),
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "127.0.0.1"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		TON: TONConfig{
			APIURL:          getEnv("TON_API_URL", DefaultAPIURL),
			APIToken:        getEnv("TON_API_TOKEN", ""),
			RegistryAddress: getEnv("REGISTRY_ADDRESS", DefaultRegistryAddress),
			Testnet:         getEnvBool("TON_TESTNET", true),
			MinIntervalMS:   getEnvInt("API_MIN_INTERVAL_MS", 1000),
			HTTPTimeout:     getEnvInt("TON_HTTP_TIMEOUT", 30),
		},
		Sync: SyncConfig{
			PollIntervalMS: getEnvInt("SYNC_POLL_INTERVAL_MS", 20000),
			RetryDelayMS:   getEnvInt("SYNC_RETRY_DELAY_MS", 3000),
			RefreshDelayMS: getEnvInt("SYNC_REFRESH_DELAY_MS", 5000),
		},
		Wallet: WalletConfig{
			Address:       getEnv("WALLET_ADDRESS", ""),
			ManifestURL:   getEnv("WALLET_MANIFEST_URL", DefaultManifestURL),
			Theme:         getEnv("WALLET_THEME", "SYSTEM"),
			ReturnURL:     getEnv("WALLET_RETURN_URL", ""),
			HostContainer: getEnvBool("WALLET_HOST_CONTAINER", false),
			OutboxDir:     getEnv("WALLET_OUTBOX_DIR", "./data/outbox"),
			TxValidSecs:   getEnvInt("TX_VALID_SECONDS", 360),
			TxAmountTON:   getEnv("TX_AMOUNT_TON", "0.1"),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/echoes.db"),
			},
			LevelDB: LevelDBConfig{
				Path: getEnv("LEVELDB_PATH", "./data/echoes.ldb"),
			},
		},
		Cache: CacheConfig{
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", DefaultCacheKeyPrefix),
		},
		Auth: AuthConfig{
			Type:  getEnv("AUTH_TYPE", "none"),
			Token: getEnv("BRIDGE_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:      getEnvInt("RATE_LIMIT_RPM", 300),
			WriteRequestsPerMin: getEnvInt("RATE_LIMIT_WRITE_RPM", 30),
			BurstSize:           getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes:      getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 1),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgres", "leveldb", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres storage")
	}
	if c.Auth.Type == "token" && c.Auth.Token == "" {
		return fmt.Errorf("BRIDGE_TOKEN is required when AUTH_TYPE=token")
	}
	if c.TON.APIURL == "" {
		return fmt.Errorf("TON_API_URL must not be empty")
	}
	return nil
}

// MinInterval returns the gateway's minimum spacing between call starts.
func (t TONConfig) MinInterval() time.Duration {
	return time.Duration(t.MinIntervalMS) * time.Millisecond
}

// PollInterval returns the vault poll cadence.
func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// RetryDelay returns the delay before a failed full fetch is retried.
func (s SyncConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

// RefreshDelay returns the settle time after a submitted transaction.
func (s SyncConfig) RefreshDelay() time.Duration {
	return time.Duration(s.RefreshDelayMS) * time.Millisecond
}

// File is the TOML overlay read from echoes.toml. Zero values leave the
// environment-derived setting untouched.
type File struct {
	APIURL          string `toml:"api_url,omitempty"`
	RegistryAddress string `toml:"registry_address,omitempty"`
	Testnet         *bool  `toml:"testnet,omitempty"`
	Bridge          string `toml:"bridge,omitempty"`
	Wallet          string `toml:"wallet,omitempty"`
	Storage         struct {
		Type string `toml:"type,omitempty"`
		Path string `toml:"path,omitempty"`
		URL  string `toml:"url,omitempty"`
	} `toml:"storage,omitempty"`
	Sync struct {
		PollIntervalMS int `toml:"poll_interval_ms,omitempty"`
		RetryDelayMS   int `toml:"retry_delay_ms,omitempty"`
		RefreshDelayMS int `toml:"refresh_delay_ms,omitempty"`
	} `toml:"sync,omitempty"`
}

// ReadFile parses a TOML overlay file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	return &f, nil
}

// Apply overlays the non-zero values of f onto c.
func (f *File) Apply(c *Config) {
	if f.APIURL != "" {
		c.TON.APIURL = f.APIURL
	}
	if f.RegistryAddress != "" {
		c.TON.RegistryAddress = f.RegistryAddress
	}
	if f.Testnet != nil {
		c.TON.Testnet = *f.Testnet
	}
	if f.Wallet != "" {
		c.Wallet.Address = f.Wallet
	}
	if f.Storage.Type != "" {
		c.Storage.Type = f.Storage.Type
	}
	if f.Storage.Path != "" {
		switch c.Storage.Type {
		case "leveldb":
			c.Storage.LevelDB.Path = f.Storage.Path
		default:
			c.Storage.SQLite.Path = f.Storage.Path
		}
	}
	if f.Storage.URL != "" {
		c.Storage.Postgres.URL = f.Storage.URL
	}
	if f.Sync.PollIntervalMS > 0 {
		c.Sync.PollIntervalMS = f.Sync.PollIntervalMS
	}
	if f.Sync.RetryDelayMS > 0 {
		c.Sync.RetryDelayMS = f.Sync.RetryDelayMS
	}
	if f.Sync.RefreshDelayMS > 0 {
		c.Sync.RefreshDelayMS = f.Sync.RefreshDelayMS
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
