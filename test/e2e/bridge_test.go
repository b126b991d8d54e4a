//go:build e2e

package e2e

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/indexertest"
	"github.com/pendergraft/echoes/internal/storage"
	"github.com/pendergraft/echoes/pkg/client"
)

func TestHealth_Endpoints(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	require.NoError(t, e.Client.Health(ctx))

	v, err := e.Client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(e.Client.BaseURL() + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestBridge_ConnectAndSync(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	net := ton.Network{Testnet: e.Config.TON.Testnet}

	user, vault := indexertest.Address(0x10), indexertest.Address(0x20)
	first, remix := indexertest.Address(0x31), indexertest.Address(0x32)
	e.Indexer.SetVault(user, vault)
	e.Indexer.AddPiece(vault, first, []byte("original"), nil)
	e.Indexer.AddPiece(vault, remix, []byte("remix"), first)

	status, err := e.Client.Connect(ctx, net.Friendly(user))
	require.NoError(t, err)
	assert.True(t, status.Connected)

	info := waitForPieces(t, e.Client, 2)
	require.NotNil(t, info.UserVaultAddress)
	assert.Equal(t, net.Friendly(vault), *info.UserVaultAddress)
	assert.Equal(t, []string{net.Friendly(first), net.Friendly(remix)}, info.PieceAddresses)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("remix")), *info.PieceData[net.Friendly(remix)])
	assert.Equal(t, net.Friendly(first), *info.PieceRemixData[net.Friendly(remix)])
	require.NotNil(t, info.FeeParams)
	assert.Equal(t, uint64(indexertest.DeployValue), info.FeeParams.DeployValue)
	require.NotNil(t, info.SecurityParams)
	assert.Equal(t, uint64(indexertest.CoolDownSeconds), info.SecurityParams.CoolDownSeconds)

	// The snapshot lands in Postgres under the raw user address.
	require.Eventually(t, func() bool {
		rec, err := e.Daemon.Store().LoadPieces(ctx, e.Config.Cache.KeyPrefix+ton.Raw(user))
		return err == nil && len(rec.PieceData) == 2
	}, 10*time.Second, 50*time.Millisecond)
}

func TestBridge_PollingPicksUpNewPiece(t *testing.T) {
	user, vault := indexertest.Address(0x11), indexertest.Address(0x21)
	e := newEnv(t, ton.Raw(user))
	e.Indexer.SetVault(user, vault)
	e.Indexer.AddPiece(vault, indexertest.Address(0x41), []byte("one"), nil)

	waitForPieces(t, e.Client, 1)

	e.Indexer.AddPiece(vault, indexertest.Address(0x42), []byte("two"), nil)
	waitForPieces(t, e.Client, 2)

	st, err := e.Client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Polling)
}

func TestBridge_CreatePiece(t *testing.T) {
	user, vault := indexertest.Address(0x12), indexertest.Address(0x22)
	e := newEnv(t, ton.Raw(user))
	e.Indexer.SetVault(user, vault)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		v, err := e.Client.VaultAddress(ctx)
		return err == nil && v != nil
	}, 10*time.Second, 50*time.Millisecond)

	t.Run("rejected without token", func(t *testing.T) {
		anon := client.New(e.Client.BaseURL(), "")
		_, err := anon.CreatePiece(ctx, "piece", "")
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("recorded as a pending transaction", func(t *testing.T) {
		ok, err := e.Client.CreatePiece(ctx, "new piece", "")
		require.NoError(t, err)
		assert.True(t, ok)

		txs, err := e.Client.Transactions(ctx, ton.Raw(user), 10)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "pending", txs[0].Status)
		assert.Equal(t, ton.Raw(user), txs[0].WalletAddress)
	})

}

func TestBridge_DisconnectClearsState(t *testing.T) {
	user, vault := indexertest.Address(0x13), indexertest.Address(0x23)
	e := newEnv(t, ton.Raw(user))
	e.Indexer.SetVault(user, vault)
	e.Indexer.AddPiece(vault, indexertest.Address(0x51), []byte("one"), nil)
	ctx := context.Background()

	waitForPieces(t, e.Client, 1)

	require.NoError(t, e.Client.Disconnect(ctx))

	require.Eventually(t, func() bool {
		info, err := e.Client.ContractInfo(ctx)
		return err == nil && info.UserVaultAddress == nil && len(info.PieceAddresses) == 0
	}, 10*time.Second, 50*time.Millisecond)

	w, err := e.Client.Wallet(ctx)
	require.NoError(t, err)
	assert.False(t, w.Connected)

	_, err = e.Daemon.Store().LoadPieces(ctx, e.Config.Cache.KeyPrefix+ton.Raw(user))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestBridge_PendingPiece(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	data, parent := "staged", "EQ-parent"
	require.NoError(t, e.Client.SetPendingPiece(ctx, client.PendingPiece{PieceData: &data, RemixedFrom: &parent}))

	p, err := e.Client.PendingPiece(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.PieceData)
	assert.Equal(t, "staged", *p.PieceData)

	require.NoError(t, e.Client.ClearPendingPiece(ctx))
	p, err = e.Client.PendingPiece(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.PieceData)
	assert.Nil(t, p.RemixedFrom)
}
