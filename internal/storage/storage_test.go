package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/echoes/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// backends returns every embedded backend, migrated and ready.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "echoes.db"), testLogger())
	require.NoError(t, err)
	level, err := NewLevelDBStore(filepath.Join(dir, "echoes.ldb"), testLogger())
	require.NoError(t, err)

	stores := map[string]Store{
		"sqlite":  sqlite,
		"leveldb": level,
		"memory":  NewMemoryStore(),
	}
	for _, s := range stores {
		require.NoError(t, s.Migrate(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
	}
	return stores
}

func TestPieceStore(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "echoes_pieces_0:abc"

			_, err := store.LoadPieces(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			rec := &PieceRecord{
				PieceData:      map[string]*string{"A": strPtr("eA=="), "B": nil},
				PieceRemixData: map[string]*string{"A": nil, "B": nil},
				PieceAddresses: []string{"A", "B"},
			}
			require.NoError(t, store.SavePieces(ctx, key, rec))

			got, err := store.LoadPieces(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "eA==", *got.PieceData["A"])
			v, ok := got.PieceData["B"]
			assert.True(t, ok, "failed fetches are kept as null entries")
			assert.Nil(t, v)
			assert.Equal(t, []string{"A", "B"}, got.PieceAddresses)
			assert.False(t, got.UpdatedAt.IsZero())

			// Saves overwrite wholesale.
			require.NoError(t, store.SavePieces(ctx, key, &PieceRecord{
				PieceData: map[string]*string{"C": strPtr("eQ==")},
			}))
			got, err = store.LoadPieces(ctx, key)
			require.NoError(t, err)
			assert.Len(t, got.PieceData, 1)
			assert.NotNil(t, got.PieceRemixData)

			require.NoError(t, store.DeletePieces(ctx, key))
			_, err = store.LoadPieces(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing record is not an error.
			assert.NoError(t, store.DeletePieces(ctx, key))
		})
	}
}

func TestPieceStore_ListKeysMatchesPrefixLiterally(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"echoes_pieces_u2", "echoes_pieces_u1", "echoesXpiecesXu3", "other"} {
				require.NoError(t, store.SavePieces(ctx, k, &PieceRecord{}))
			}

			keys, err := store.ListPieceKeys(ctx, "echoes_pieces_")
			require.NoError(t, err)
			assert.Equal(t, []string{"echoes_pieces_u1", "echoes_pieces_u2"}, keys)
		})
	}
}

func TestPieceStore_RejectsEmptyKey(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.SavePieces(context.Background(), " ", &PieceRecord{})
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestTransactionStore(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				tx := &Transaction{
					WalletAddress: "0:abc",
					Request:       `{"validUntil":1}`,
					ValidUntil:    int64(i),
				}
				require.NoError(t, store.RecordTransaction(ctx, tx))
				assert.NotEmpty(t, tx.ID)
				assert.Equal(t, TxStatusPending, tx.Status)
				time.Sleep(2 * time.Millisecond)
			}
			require.NoError(t, store.RecordTransaction(ctx, &Transaction{WalletAddress: "0:def", Request: "{}"}))

			txs, err := store.ListTransactions(ctx, "0:abc", 2)
			require.NoError(t, err)
			require.Len(t, txs, 2)
			assert.Equal(t, int64(2), txs[0].ValidUntil)
			assert.Equal(t, int64(1), txs[1].ValidUntil)

			err = store.RecordTransaction(ctx, &Transaction{WalletAddress: "0:abc"})
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "a.db")}}},
		{name: "leveldb", cfg: config.StorageConfig{Type: "leveldb", LevelDB: config.LevelDBConfig{Path: filepath.Join(dir, "a.ldb")}}},
		{name: "unknown", cfg: config.StorageConfig{Type: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}
