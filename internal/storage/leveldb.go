package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	pieceKeyPrefix = "pieces:"
	txKeyPrefix    = "tx:"
)

// LevelDBStore implements Store on an embedded LevelDB database
type LevelDBStore struct {
	db     *leveldb.DB
	logger *slog.Logger
}

// NewLevelDBStore opens (or creates) a LevelDB database at path
func NewLevelDBStore(path string, logger *slog.Logger) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store: %w", err)
	}
	return &LevelDBStore{db: db, logger: logger}, nil
}

// Close releases the underlying LevelDB resources
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate is a no-op; LevelDB has no schema
func (s *LevelDBStore) Migrate(ctx context.Context) error {
	return nil
}

// SavePieces replaces the record stored under key
func (s *LevelDBStore) SavePieces(ctx context.Context, key string, rec *PieceRecord) error {
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
	if err := s.db.Put([]byte(pieceKeyPrefix+key), data, nil); err != nil {
		return fmt.Errorf("saving pieces: %w", err)
	}
	return nil
}

// LoadPieces returns the record stored under key
func (s *LevelDBStore) LoadPieces(ctx context.Context, key string) (*PieceRecord, error) {
	data, err := s.db.Get([]byte(pieceKeyPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading pieces: %w", err)
	}
	return decodeRecord(data)
}

// DeletePieces removes the record stored under key
func (s *LevelDBStore) DeletePieces(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(pieceKeyPrefix+key), nil); err != nil {
		return fmt.Errorf("deleting pieces: %w", err)
	}
	return nil
}

// ListPieceKeys lists stored keys starting with prefix
func (s *LevelDBStore) ListPieceKeys(ctx context.Context, prefix string) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(pieceKeyPrefix+prefix)), nil)
	defer iter.Release()

	keys := []string{}
	for iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		keys = append(keys, strings.TrimPrefix(string(iter.Key()), pieceKeyPrefix))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("listing piece keys: %w", err)
	}
	return keys, nil
}

// levelTx is the stored form of a Transaction
type levelTx struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Request       string `json:"request"`
	Status        string `json:"status"`
	ValidUntil    int64  `json:"validUntil"`
	CreatedAt     string `json:"createdAt"`
}

// txKey orders a wallet's transactions by creation time.
func txKey(wallet string, created time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s|%020d|%s", txKeyPrefix, wallet, created.UnixNano(), id))
}

// RecordTransaction stores a transaction request
func (s *LevelDBStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if err := prepareTransaction(tx); err != nil {
		return err
	}
	created := time.Now().UTC()
	tx.CreatedAt = created.Format(time.RFC3339Nano)

	data, err := json.Marshal(levelTx(*tx))
	if err != nil {
		return fmt.Errorf("encoding transaction: %w", err)
	}
	if err := s.db.Put(txKey(tx.WalletAddress, created, tx.ID), data, nil); err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent transactions of a wallet, newest first
func (s *LevelDBStore) ListTransactions(ctx context.Context, walletAddress string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(txKeyPrefix+walletAddress+"|")), nil)
	defer iter.Release()

	txs := []Transaction{}
	for ok := iter.Last(); ok && len(txs) < limit; ok = iter.Prev() {
		var stored levelTx
		if err := json.Unmarshal(iter.Value(), &stored); err != nil {
			s.logger.Warn("skipping corrupt transaction entry", "key", string(iter.Key()), "error", err)
			continue
		}
		txs = append(txs, Transaction(stored))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}
