package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	pieces map[string][]byte
	txs    []Transaction
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pieces: make(map[string][]byte)}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Migrate is a no-op
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// SavePieces replaces the record stored under key
func (s *MemoryStore) SavePieces(ctx context.Context, key string, rec *PieceRecord) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	// Stored encoded so callers cannot alias the saved maps.
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pieces[key] = data
	s.mu.Unlock()
	return nil
}

// LoadPieces returns the record stored under key
func (s *MemoryStore) LoadPieces(ctx context.Context, key string) (*PieceRecord, error) {
	s.mu.RLock()
	data, ok := s.pieces[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(data)
}

// DeletePieces removes the record stored under key
func (s *MemoryStore) DeletePieces(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.pieces, key)
	s.mu.Unlock()
	return nil
}

// ListPieceKeys lists stored keys starting with prefix
func (s *MemoryStore) ListPieceKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for k := range s.pieces {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// RecordTransaction stores a transaction request
func (s *MemoryStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if err := prepareTransaction(tx); err != nil {
		return err
	}
	tx.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	s.txs = append(s.txs, *tx)
	s.mu.Unlock()
	return nil
}

// ListTransactions returns the most recent transactions of a wallet, newest first
func (s *MemoryStore) ListTransactions(ctx context.Context, walletAddress string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := []Transaction{}
	for i := len(s.txs) - 1; i >= 0 && len(txs) < limit; i-- {
		if s.txs[i].WalletAddress == walletAddress {
			txs = append(txs, s.txs[i])
		}
	}
	return txs, nil
}
