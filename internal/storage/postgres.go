package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Cached piece maps, one row per wallet
	CREATE TABLE IF NOT EXISTS piece_cache (
		cache_key TEXT PRIMARY KEY,
		record JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Transactions handed to the wallet
	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		wallet_address TEXT NOT NULL,
		request JSONB NOT NULL,
		status TEXT NOT NULL,
		valid_until BIGINT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
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
func (s *PostgresStore) SavePieces(ctx context.Context, key string, rec *PieceRecord) error {
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
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at
	`, key, data, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving pieces: %w", err)
	}
	return nil
}

// LoadPieces returns the record stored under key
func (s *PostgresStore) LoadPieces(ctx context.Context, key string) (*PieceRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM piece_cache WHERE cache_key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading pieces: %w", err)
	}
	return decodeRecord(data)
}

// DeletePieces removes the record stored under key
func (s *PostgresStore) DeletePieces(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM piece_cache WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting pieces: %w", err)
	}
	return nil
}

// ListPieceKeys lists stored keys starting with prefix
func (s *PostgresStore) ListPieceKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key FROM piece_cache WHERE cache_key LIKE $1 ESCAPE '\' ORDER BY cache_key`,
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
func (s *PostgresStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if err := prepareTransaction(tx); err != nil {
		return err
	}

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, wallet_address, request, status, valid_until)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, tx.ID, tx.WalletAddress, tx.Request, tx.Status, tx.ValidUntil).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}
	tx.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	return nil
}

// ListTransactions returns the most recent transactions of a wallet, newest first
func (s *PostgresStore) ListTransactions(ctx context.Context, walletAddress string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_address, request, status, valid_until, created_at
		FROM transactions
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var tx Transaction
		var createdAt time.Time
		if err := rows.Scan(&tx.ID, &tx.WalletAddress, &tx.Request, &tx.Status, &tx.ValidUntil, &createdAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
