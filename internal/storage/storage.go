package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/echoes/internal/config"
)

// PieceStore persists the cached piece maps of each wallet
type PieceStore interface {
	SavePieces(ctx context.Context, key string, rec *PieceRecord) error
	LoadPieces(ctx context.Context, key string) (*PieceRecord, error)
	DeletePieces(ctx context.Context, key string) error
	ListPieceKeys(ctx context.Context, prefix string) ([]string, error)
}

// TransactionStore keeps a log of transactions handed to the wallet
type TransactionStore interface {
	RecordTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, walletAddress string, limit int) ([]Transaction, error)
}

// Store combines all storage interfaces with lifecycle methods.
// Components define their own minimal interfaces based on their actual usage.
type Store interface {
	PieceStore
	TransactionStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// PieceRecord is the cached state of one wallet's pieces. A nil map value
// marks a piece whose fetch was attempted and failed.
type PieceRecord struct {
	PieceData      map[string]*string `json:"pieceData"`
	PieceRemixData map[string]*string `json:"pieceRemixData"`
	PieceAddresses []string           `json:"pieceAddresses,omitempty"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Transaction is a create-piece request handed to the wallet for signing
type Transaction struct {
	ID            string
	WalletAddress string
	Request       string // JSON TON Connect request
	Status        string
	ValidUntil    int64
	CreatedAt     string
}

// Transaction statuses
const (
	TxStatusPending = "pending"
	TxStatusSent    = "sent"
	TxStatusFailed  = "failed"
)

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "leveldb":
		return NewLevelDBStore(cfg.LevelDB.Path, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
