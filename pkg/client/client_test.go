package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_ContractInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bridge/contract-info" {
			t.Errorf("Expected path /api/v1/bridge/contract-info, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}

		w.Write([]byte(`{
			"feeParams": {"deployValue": 50000000, "messageValue": 10000000},
			"securityParams": null,
			"userVaultAddress": "EQ-vault",
			"pieceCount": 2,
			"pieceAddresses": ["EQ-a", "EQ-b"],
			"pieceData": {"EQ-a": "aGk=", "EQ-b": null},
			"pieceRemixData": {},
			"loading": true
		}`))
	}))
	defer server.Close()

	info, err := New(server.URL, "").ContractInfo(context.Background())
	if err != nil {
		t.Fatalf("ContractInfo() error = %v", err)
	}

	if info.FeeParams == nil || info.FeeParams.DeployValue != 50000000 {
		t.Errorf("ContractInfo().FeeParams = %+v, want deployValue 50000000", info.FeeParams)
	}
	if info.SecurityParams != nil {
		t.Errorf("ContractInfo().SecurityParams = %+v, want nil", info.SecurityParams)
	}
	if info.PieceCount == nil || *info.PieceCount != 2 {
		t.Errorf("ContractInfo().PieceCount = %v, want 2", info.PieceCount)
	}
	if data, ok := info.PieceData["EQ-b"]; !ok || data != nil {
		t.Errorf("ContractInfo().PieceData[EQ-b] = %v, %v; want nil, true", data, ok)
	}
	if !info.Loading {
		t.Error("ContractInfo().Loading = false, want true")
	}
}

func TestClient_CreatePiece(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bridge/pieces" {
			t.Errorf("Expected path /api/v1/bridge/pieces, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get(TokenHeader) != "ech_token" {
			t.Errorf("Expected %s header, got %q", TokenHeader, r.Header.Get(TokenHeader))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["pieceData"] != "hello" || body["remixedFrom"] != "EQ-parent" {
			t.Errorf("unexpected body %v", body)
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ok, err := New(server.URL, "ech_token").CreatePiece(context.Background(), "hello", "EQ-parent")
	if err != nil {
		t.Fatalf("CreatePiece() error = %v", err)
	}
	if !ok {
		t.Error("CreatePiece() = false, want true")
	}
}

func TestClient_RefreshVaultAddress(t *testing.T) {
	found := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !found {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"Vault not found"}}`))
			return
		}
		w.Write([]byte(`{"vaultAddress":"EQ-vault"}`))
	}))
	defer server.Close()

	c := New(server.URL, "")
	vault, err := c.RefreshVaultAddress(context.Background())
	if err != nil || vault != nil {
		t.Fatalf("RefreshVaultAddress() = %v, %v; want nil, nil", vault, err)
	}

	found = true
	vault, err = c.RefreshVaultAddress(context.Background())
	if err != nil {
		t.Fatalf("RefreshVaultAddress() error = %v", err)
	}
	if vault == nil || *vault != "EQ-vault" {
		t.Errorf("RefreshVaultAddress() = %v, want EQ-vault", vault)
	}
}

func TestClient_PendingPiece(t *testing.T) {
	var stored PendingPiece
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bridge/pending" {
			t.Errorf("Expected path /api/v1/bridge/pending, got %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&stored)
			json.NewEncoder(w).Encode(stored)
		case http.MethodDelete:
			stored = PendingPiece{}
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(stored)
		}
	}))
	defer server.Close()

	c := New(server.URL, "")
	data := "staged"
	if err := c.SetPendingPiece(context.Background(), PendingPiece{PieceData: &data}); err != nil {
		t.Fatalf("SetPendingPiece() error = %v", err)
	}

	got, err := c.PendingPiece(context.Background())
	if err != nil {
		t.Fatalf("PendingPiece() error = %v", err)
	}
	if got.PieceData == nil || *got.PieceData != "staged" {
		t.Errorf("PendingPiece().PieceData = %v, want staged", got.PieceData)
	}

	if err := c.ClearPendingPiece(context.Background()); err != nil {
		t.Fatalf("ClearPendingPiece() error = %v", err)
	}
	if stored.PieceData != nil {
		t.Error("ClearPendingPiece() left data staged")
	}
}

func TestClient_StatusAndWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/bridge/status":
			w.Write([]byte(`{"phase":"polling","address":"0:abc","polling":true,"pendingPieces":1}`))
		case "/api/v1/bridge/wallet":
			w.Write([]byte(`{"connected":true,"address":"0:abc"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL, "")
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Phase != "polling" || status.PendingPieces != 1 {
		t.Errorf("Status() = %+v", status)
	}

	wallet, err := c.Wallet(context.Background())
	if err != nil {
		t.Fatalf("Wallet() error = %v", err)
	}
	if !wallet.Connected || wallet.Address == nil || *wallet.Address != "0:abc" {
		t.Errorf("Wallet() = %+v", wallet)
	}
}

func TestClient_Transactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions" {
			t.Errorf("Expected path /api/v1/transactions, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("wallet"); got != "0:abc" {
			t.Errorf("wallet = %q, want 0:abc", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, want 5", got)
		}
		w.Write([]byte(`{"data":[{"id":"tx-1","walletAddress":"0:abc","status":"pending","request":{"validUntil":1}}]}`))
	}))
	defer server.Close()

	txs, err := New(server.URL, "").Transactions(context.Background(), "0:abc", 5)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "tx-1" {
		t.Errorf("Transactions() = %+v", txs)
	}
}

func TestClient_ErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Bridge token required"}}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "").CreatePiece(context.Background(), "x", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "UNAUTHORIZED" || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	err := New(server.URL, "").Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("Health() error = %v, want HTTP 502 APIError", err)
	}
}
