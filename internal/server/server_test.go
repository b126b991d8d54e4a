package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/echoes/internal/auth"
	bridgeDomain "github.com/pendergraft/echoes/internal/bridge/domain"
	"github.com/pendergraft/echoes/internal/config"
	"github.com/pendergraft/echoes/internal/state"
	"github.com/pendergraft/echoes/internal/storage"
	"github.com/pendergraft/echoes/internal/syncer"
)

type stubEngine struct {
	created int
}

func (e *stubEngine) RefreshVaultAddress(ctx context.Context) (string, bool) { return "", false }
func (e *stubEngine) SaveAudioGraph(ctx context.Context, graph string) bool  { return false }
func (e *stubEngine) LoadAudioGraph(ctx context.Context, nftAddress string) (string, bool) {
	return "", false
}
func (e *stubEngine) CreateNewPiece(ctx context.Context, raw []byte, remixedFrom *address.Address) bool {
	e.created++
	return true
}
func (e *stubEngine) Status() syncer.Status { return syncer.Status{Phase: syncer.PhaseDisconnected} }

type stubWallet struct{ address string }

func (w *stubWallet) IsConnected() bool { return w.address != "" }
func (w *stubWallet) Address() string   { return w.address }

func testConfig() *config.Config {
	return &config.Config{
		Auth:      config.AuthConfig{Type: "token", Token: "ech_secret"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeMB: 1},
	}
}

type fixture struct {
	srv    *Server
	engine *stubEngine
	wallet *stubWallet
	store  *storage.MemoryStore
}

func newFixture(t *testing.T, cfg *config.Config, ready ReadyFunc) *fixture {
	t.Helper()
	engine := &stubEngine{}
	wallet := &stubWallet{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := bridgeDomain.NewService(engine, state.New(), wallet, "EQ-registry", logger)
	store := storage.NewMemoryStore()

	return &fixture{
		srv: New(cfg, Deps{
			Bridge:       bridge,
			Transactions: store,
			Ready:        ready,
		}, logger),
		engine: engine,
		wallet: wallet,
		store:  store,
	}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	for _, path := range []string{"/health", "/healthz"} {
		rr := f.do("GET", path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	}

	rr := f.do("GET", "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"phase":"disconnected"`)
}

func TestServer_Version(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	rr := f.do("GET", "/version", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"version":"dev"}`, rr.Body.String())

	f.srv.deps.Version = "1.4.0"
	rr = f.do("GET", "/version", "", "")
	assert.JSONEq(t, `{"version":"1.4.0"}`, rr.Body.String())
}

func TestServer_ReadyzFailure(t *testing.T) {
	f := newFixture(t, testConfig(), func(ctx context.Context) error {
		return errors.New("storage unavailable")
	})

	rr := f.do("GET", "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "NOT_READY", errorCode(t, rr))
}

func TestServer_ReadRoutesNeedNoToken(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	rr := f.do("GET", "/api/v1/bridge/registry", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "EQ-registry")
}

func TestServer_WriteRoutesRequireToken(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	rr := f.do("POST", "/api/v1/bridge/pieces", `{"pieceData":"hello"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rr))

	rr = f.do("POST", "/api/v1/bridge/pieces", `{"pieceData":"hello"}`, "ech_wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, f.engine.created)

	rr = f.do("POST", "/api/v1/bridge/pieces", `{"pieceData":"hello"}`, "ech_secret")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, f.engine.created)
}

func TestServer_AuthDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Type: "none"}
	f := newFixture(t, cfg, nil)

	rr := f.do("DELETE", "/api/v1/bridge/pending", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestServer_WriteRoutesRequireJSON(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	req := httptest.NewRequest("POST", "/api/v1/bridge/pieces", bytes.NewReader([]byte(`{"pieceData":"x"}`)))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(auth.TokenHeader, "ech_secret")
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Equal(t, 0, f.engine.created)
}

func TestServer_BlocksProbes(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	rr := f.do("GET", "/wp-admin/", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t, testConfig(), nil)

	rr := f.do("OPTIONS", "/api/v1/bridge/pieces", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), auth.TokenHeader)
}

func TestServer_Transactions(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, f.store.RecordTransaction(ctx, &storage.Transaction{
		ID:            "tx-1",
		WalletAddress: "0:abc",
		Request:       `{"validUntil":1}`,
		ValidUntil:    1,
	}))

	rr := f.do("GET", "/api/v1/transactions", "", "ech_secret")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.wallet.address = "0:abc"
	rr = f.do("GET", "/api/v1/transactions", "", "ech_secret")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []transactionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "tx-1", resp.Data[0].ID)
	assert.Equal(t, storage.TxStatusPending, resp.Data[0].Status)
	assert.JSONEq(t, `{"validUntil":1}`, string(resp.Data[0].Request))

	rr = f.do("GET", "/api/v1/transactions?wallet=0:other", "", "ech_secret")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":[]}`, rr.Body.String())

	rr = f.do("GET", "/api/v1/transactions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
