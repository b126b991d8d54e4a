// Package cache is the best-effort local cache of each wallet's piece data.
// It never returns errors: failures are logged and the cache behaves as if
// the record were absent.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/storage"
)

// Pieces is the cached view of one wallet's pieces.
type Pieces struct {
	PieceData      map[string]*string
	PieceRemixData map[string]*string
	PieceAddresses []string
}

// Cache stores Pieces per wallet address under <prefix><address>.
type Cache struct {
	store  storage.PieceStore
	prefix string
	logger *slog.Logger
}

// New creates a cache over store.
func New(store storage.PieceStore, prefix string, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		prefix: prefix,
		logger: logger.With("component", "cache"),
	}
}

// Key returns the storage key for a wallet address.
func (c *Cache) Key(userAddress string) string {
	return c.prefix + userAddress
}

// SavePieces overwrites the wallet's record with p.
func (c *Cache) SavePieces(ctx context.Context, userAddress string, p Pieces) {
	if userAddress == "" {
		return
	}
	rec := &storage.PieceRecord{
		PieceData:      p.PieceData,
		PieceRemixData: p.PieceRemixData,
		PieceAddresses: p.PieceAddresses,
	}
	if err := c.store.SavePieces(ctx, c.Key(userAddress), rec); err != nil {
		metrics.CacheOp("save", "error")
		c.logger.Error("savePieces", "user", userAddress, "error", err)
		return
	}
	metrics.CacheOp("save", "ok")
}

// LoadPieces returns the wallet's record, or nil when there is none or it
// cannot be read.
func (c *Cache) LoadPieces(ctx context.Context, userAddress string) *Pieces {
	if userAddress == "" {
		return nil
	}
	rec, err := c.store.LoadPieces(ctx, c.Key(userAddress))
	if errors.Is(err, storage.ErrNotFound) {
		metrics.CacheOp("load", "miss")
		return nil
	}
	if err != nil {
		metrics.CacheOp("load", "error")
		c.logger.Error("loadPieces", "user", userAddress, "error", err)
		return nil
	}
	metrics.CacheOp("load", "hit")
	return &Pieces{
		PieceData:      rec.PieceData,
		PieceRemixData: rec.PieceRemixData,
		PieceAddresses: rec.PieceAddresses,
	}
}

// ClearPieces removes the wallet's record.
func (c *Cache) ClearPieces(ctx context.Context, userAddress string) {
	if userAddress == "" {
		return
	}
	if err := c.store.DeletePieces(ctx, c.Key(userAddress)); err != nil {
		metrics.CacheOp("clear", "error")
		c.logger.Error("clearPieces", "user", userAddress, "error", err)
		return
	}
	metrics.CacheOp("clear", "ok")
}

// Users lists the wallet addresses that have a cached record.
func (c *Cache) Users(ctx context.Context) []string {
	keys, err := c.store.ListPieceKeys(ctx, c.prefix)
	if err != nil {
		c.logger.Error("listing cached users", "error", err)
		return nil
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, c.prefix))
	}
	return users
}
