package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Cached piece maps, one row per wallet
	CREATE TABLE IF NOT EXISTS piece_cache (
		cache_key TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions handed to the wallet
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		valid_until INTEGER NOT NULL,
		created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_address, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations completed")
	return nil
}

// SavePieces replaces the record stored under key
func (s *SQLiteStore) SavePieces(ctx context.Context, key string, rec *PieceRecord) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO piece_cache (cache_key, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
	`, key, string(data), rec.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving pieces: %w", err)
	}
	return nil
}

// LoadPieces returns the record stored under key
func (s *SQLiteStore) LoadPieces(ctx context.Context, key string) (*PieceRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM piece_cache WHERE cache_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading pieces: %w", err)
	}
	return decodeRecord([]byte(data))
}

// DeletePieces removes the record stored under key
func (s *SQLiteStore) DeletePieces(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM piece_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting pieces: %w", err)
	}
	return nil
}

// ListPieceKeys lists stored keys starting with prefix
func (s *SQLiteStore) ListPieceKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key FROM piece_cache WHERE cache_key LIKE ? ESCAPE '\' ORDER BY cache_key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("listing piece keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RecordTransaction stores a transaction request
func (s *SQLiteStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if err := prepareTransaction(tx); err != nil {
		return err
	}
	tx.CreatedAt = time.Now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, wallet_address, request, status, valid_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.WalletAddress, tx.Request, tx.Status, tx.ValidUntil, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent transactions of a wallet, newest first
func (s *SQLiteStore) ListTransactions(ctx context.Context, walletAddress string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_address, request, status, valid_until, created_at
		FROM transactions
		WHERE wallet_address = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.WalletAddress, &tx.Request, &tx.Status, &tx.ValidUntil, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
