//go:build e2e

package e2e

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/echoes/internal/cache"
	"github.com/pendergraft/echoes/internal/storage"
)

func openPostgres(t *testing.T) *storage.PostgresStore {
	t.Helper()
	store, err := storage.NewPostgresStore(connString, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_PieceStore(t *testing.T) {
	store := openPostgres(t)
	ctx := context.Background()
	prefix := "e2e-store-"
	data := "aGk="

	require.NoError(t, store.SavePieces(ctx, prefix+"0:aa", &storage.PieceRecord{
		PieceData:      map[string]*string{"EQ-a": &data, "EQ-b": nil},
		PieceRemixData: map[string]*string{"EQ-a": nil, "EQ-b": nil},
		PieceAddresses: []string{"EQ-a", "EQ-b"},
	}))
	require.NoError(t, store.SavePieces(ctx, prefix+"0:bb", &storage.PieceRecord{}))
	require.NoError(t, store.SavePieces(ctx, "other-0:cc", &storage.PieceRecord{}))

	got, err := store.LoadPieces(ctx, prefix+"0:aa")
	require.NoError(t, err)
	assert.Equal(t, data, *got.PieceData["EQ-a"])
	v, ok := got.PieceData["EQ-b"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, []string{"EQ-a", "EQ-b"}, got.PieceAddresses)

	keys, err := store.ListPieceKeys(ctx, prefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{prefix + "0:aa", prefix + "0:bb"}, keys)

	require.NoError(t, store.DeletePieces(ctx, prefix+"0:aa"))
	_, err = store.LoadPieces(ctx, prefix+"0:aa")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgres_Cache(t *testing.T) {
	store := openPostgres(t)
	ctx := context.Background()
	c := cache.New(store, "e2e-cache-", slog.New(slog.NewTextHandler(io.Discard, nil)))

	data := "aGk="
	c.SavePieces(ctx, "0:dd", cache.Pieces{
		PieceData:      map[string]*string{"EQ-a": &data},
		PieceRemixData: map[string]*string{"EQ-a": nil},
		PieceAddresses: []string{"EQ-a"},
	})

	got := c.LoadPieces(ctx, "0:dd")
	require.NotNil(t, got)
	assert.Equal(t, data, *got.PieceData["EQ-a"])
	assert.Contains(t, got.PieceRemixData, "EQ-a")
	assert.Equal(t, []string{"0:dd"}, c.Users(ctx))

	c.ClearPieces(ctx, "0:dd")
	assert.Nil(t, c.LoadPieces(ctx, "0:dd"))
	assert.Empty(t, c.Users(ctx))
}
