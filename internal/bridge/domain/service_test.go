package domain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
	"github.com/pendergraft/echoes/internal/state"
	"github.com/pendergraft/echoes/internal/syncer"
)

type mockEngine struct {
	vault       string
	created     [][]byte
	remixes     []*address.Address
	createOK    bool
	refreshHits int
}

func (m *mockEngine) RefreshVaultAddress(ctx context.Context) (string, bool) {
	m.refreshHits++
	return m.vault, m.vault != ""
}

func (m *mockEngine) SaveAudioGraph(ctx context.Context, graph string) bool { return false }

func (m *mockEngine) LoadAudioGraph(ctx context.Context, nftAddress string) (string, bool) {
	return "", false
}

func (m *mockEngine) CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) bool {
	m.created = append(m.created, raw)
	m.remixes = append(m.remixes, remixedFrom)
	return m.createOK
}

func (m *mockEngine) Status() syncer.Status {
	return syncer.Status{Phase: syncer.PhasePolling}
}

type mockWallet struct {
	address string
}

func (w *mockWallet) IsConnected() bool { return w.address != "" }
func (w *mockWallet) Address() string   { return w.address }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*service, *mockEngine, *mockWallet, *state.Store) {
	engine := &mockEngine{createOK: true}
	w := &mockWallet{}
	store := state.New()
	return NewService(engine, store, w, "EQ-registry", testLogger()), engine, w, store
}

func TestService_Getters(t *testing.T) {
	svc, _, w, store := newTestService()

	assert.False(t, svc.IsWalletConnected())
	assert.Nil(t, svc.GetUserAddress())
	assert.Nil(t, svc.GetUserVaultAddress())
	assert.Nil(t, svc.GetPieceAddresses())
	assert.NotNil(t, svc.GetPieceData())
	assert.Empty(t, svc.GetPieceData())
	assert.Nil(t, svc.GetPieceRemixData())
	assert.Equal(t, "EQ-registry", svc.RegistryAddress())

	w.address = "0:abc"
	vault, data := "EQ-vault", "aGk="
	store.Update(func(st *state.ContractSnapshot) {
		st.UserVaultAddress = &vault
		st.PieceAddresses = []string{"EQ-p1"}
		st.PieceData = map[string]*string{"EQ-p1": &data}
		st.PieceRemixData = map[string]*string{"EQ-p1": nil}
	})

	require.NotNil(t, svc.GetUserAddress())
	assert.Equal(t, "0:abc", *svc.GetUserAddress())
	assert.Equal(t, "EQ-vault", *svc.GetUserVaultAddress())
	assert.Equal(t, []string{"EQ-p1"}, svc.GetPieceAddresses())
	assert.Equal(t, "aGk=", *svc.GetPieceData()["EQ-p1"])
	assert.Contains(t, svc.GetPieceRemixData(), "EQ-p1")

	info := svc.GetContractInfo()
	assert.Equal(t, "EQ-vault", *info.UserVaultAddress)
	assert.False(t, info.Loading)
	assert.Equal(t, syncer.PhasePolling, svc.Status().Phase)
}

func TestService_RefreshVaultAddress(t *testing.T) {
	svc, engine, _, _ := newTestService()
	assert.Nil(t, svc.RefreshVaultAddress(context.Background()))

	engine.vault = "EQ-vault"
	got := svc.RefreshVaultAddress(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "EQ-vault", *got)
	assert.Equal(t, 2, engine.refreshHits)
}

func TestService_AudioGraphStubs(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.False(t, svc.SaveAudioGraph(context.Background(), "{}"))
	assert.Nil(t, svc.LoadAudioGraph(context.Background(), "EQ-nft"))
}

func TestService_CreateNewPiece(t *testing.T) {
	parent := address.NewAddress(0, 0, bytes.Repeat([]byte{0x42}, 32))
	friendly := ton.Testnet.Friendly(parent)

	tests := []struct {
		name      string
		data      string
		remix     string
		wantErr   error
		wantRemix string
	}{
		{name: "plain", data: "hello"},
		{name: "remix", data: "hello", remix: friendly, wantRemix: ton.Raw(parent)},
		{name: "raw remix", data: "hello", remix: ton.Raw(parent), wantRemix: ton.Raw(parent)},
		{name: "invalid remix dropped", data: "hello", remix: "not-an-address"},
		{name: "empty data", data: "", wantErr: ErrEmptyPiece},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, engine, _, _ := newTestService()

			ok, err := svc.CreateNewPiece(context.Background(), tt.data, tt.remix)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, ok)
				assert.Empty(t, engine.created)
				return
			}
			require.NoError(t, err)
			assert.True(t, ok)
			require.Len(t, engine.created, 1)
			assert.Equal(t, []byte(tt.data), engine.created[0])
			if tt.wantRemix == "" {
				assert.Nil(t, engine.remixes[0])
			} else {
				require.NotNil(t, engine.remixes[0])
				assert.Equal(t, tt.wantRemix, ton.Raw(engine.remixes[0]))
			}
		})
	}
}

func TestService_PendingPiece(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.Equal(t, PendingPiece{}, svc.GetPendingPieceData())

	data, remix := "bytes", "EQ-parent"
	svc.SetPendingPieceData(&data, &remix)
	got := svc.GetPendingPieceData()
	assert.Equal(t, "bytes", *got.PieceData)
	assert.Equal(t, "EQ-parent", *got.RemixedFrom)

	svc.SetPendingPieceData(&data, nil)
	assert.Nil(t, svc.GetPendingPieceData().RemixedFrom)

	svc.ClearPendingPieceData()
	assert.Equal(t, PendingPiece{}, svc.GetPendingPieceData())
}

func TestService_Subscribe(t *testing.T) {
	svc, _, _, store := newTestService()

	var got []ContractInfo
	unsub := svc.Subscribe(func(info ContractInfo) {
		got = append(got, info)
	})

	count := uint64(3)
	store.Update(func(st *state.ContractSnapshot) { st.PieceCount = &count })
	unsub()
	store.Update(func(st *state.ContractSnapshot) { st.PieceCount = nil })

	require.Len(t, got, 2)
	assert.Nil(t, got[0].PieceCount)
	assert.Equal(t, uint64(3), *got[1].PieceCount)
}

func TestService_Alerts(t *testing.T) {
	svc, _, _, _ := newTestService()

	svc.Notify(gateway.NewError(gateway.CodeWallet, "Wallet not connected", nil))
	svc.Notify(errors.New("boom"))

	alerts := svc.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "WALLET_ERROR", alerts[0].Code)
	assert.Contains(t, alerts[0].Message, "Wallet not connected")
	assert.Empty(t, alerts[1].Code)

	for i := 0; i < maxAlerts+5; i++ {
		svc.Notify(errors.New(strings.Repeat("x", i+1)))
	}
	alerts = svc.Alerts()
	assert.Len(t, alerts, maxAlerts)
	assert.Len(t, alerts[len(alerts)-1].Message, maxAlerts+5)
}

func TestLoggingMiddleware_Passthrough(t *testing.T) {
	svc, engine, _, _ := newTestService()
	engine.vault = "EQ-vault"
	wrapped := LoggingMiddleware(testLogger())(svc)

	assert.Equal(t, "EQ-registry", wrapped.RegistryAddress())
	assert.Equal(t, "EQ-vault", *wrapped.RefreshVaultAddress(context.Background()))
	ok, err := wrapped.CreateNewPiece(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, wrapped.SaveAudioGraph(context.Background(), "{}"))
	assert.Nil(t, wrapped.LoadAudioGraph(context.Background(), "EQ-nft"))
}
