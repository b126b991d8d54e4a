// Package client provides a Go client for the echoes bridge API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TokenHeader carries the bridge token.
const TokenHeader = "X-Bridge-Token"

// Client is an echoes bridge API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new bridge client. token may be empty when the daemon runs
// without auth.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FeeParams are the registry fee parameters
type FeeParams struct {
	DeployValue  uint64 `json:"deployValue"`
	MessageValue uint64 `json:"messageValue"`
}

// SecurityParams are the registry security parameters
type SecurityParams struct {
	MinActionFee    uint64 `json:"minActionFee"`
	CoolDownSeconds uint64 `json:"coolDownSeconds"`
}

// ContractInfo is the daemon's state snapshot
type ContractInfo struct {
	FeeParams        *FeeParams         `json:"feeParams"`
	SecurityParams   *SecurityParams    `json:"securityParams"`
	UserVaultAddress *string            `json:"userVaultAddress"`
	PieceCount       *uint64            `json:"pieceCount"`
	PieceAddresses   []string           `json:"pieceAddresses"`
	PieceData        map[string]*string `json:"pieceData"`
	PieceRemixData   map[string]*string `json:"pieceRemixData"`
	Loading          bool               `json:"loading"`
}

// WalletStatus describes the wallet connection
type WalletStatus struct {
	Connected bool    `json:"connected"`
	Address   *string `json:"address"`
}

// Status is the sync engine status
type Status struct {
	Phase         string  `json:"phase"`
	Address       *string `json:"address"`
	Loading       bool    `json:"loading"`
	Refreshing    bool    `json:"refreshing"`
	Polling       bool    `json:"polling"`
	PendingPieces int     `json:"pendingPieces"`
	FailedPieces  int     `json:"failedPieces"`
}

// PendingPiece is the piece staged for the embedded application
type PendingPiece struct {
	PieceData   *string `json:"pieceData"`
	RemixedFrom *string `json:"remixedFrom"`
}

// Alert is a failed user action reported by the daemon
type Alert struct {
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Time    time.Time `json:"time"`
}

// Transaction is a wallet request recorded by the daemon
type Transaction struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	Status        string          `json:"status"`
	ValidUntil    int64           `json:"validUntil"`
	CreatedAt     string          `json:"createdAt"`
	Request       json.RawMessage `json:"request"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// BaseURL returns the daemon URL the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks the daemon's liveness endpoint
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// Version returns the daemon's release version
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// ContractInfo returns the current state snapshot
func (c *Client) ContractInfo(ctx context.Context) (*ContractInfo, error) {
	var resp ContractInfo
	if err := c.get(ctx, "/api/v1/bridge/contract-info", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Wallet returns the wallet connection
func (c *Client) Wallet(ctx context.Context) (*WalletStatus, error) {
	var resp WalletStatus
	if err := c.get(ctx, "/api/v1/bridge/wallet", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VaultAddress returns the connected user's vault, or nil
func (c *Client) VaultAddress(ctx context.Context) (*string, error) {
	var resp struct {
		VaultAddress *string `json:"vaultAddress"`
	}
	if err := c.get(ctx, "/api/v1/bridge/vault", &resp); err != nil {
		return nil, err
	}
	return resp.VaultAddress, nil
}

// PieceAddresses returns the known piece addresses
func (c *Client) PieceAddresses(ctx context.Context) ([]string, error) {
	var resp struct {
		PieceAddresses []string `json:"pieceAddresses"`
	}
	if err := c.get(ctx, "/api/v1/bridge/pieces", &resp); err != nil {
		return nil, err
	}
	return resp.PieceAddresses, nil
}

// PieceData returns piece contents by address. A nil value marks a failed fetch.
func (c *Client) PieceData(ctx context.Context) (map[string]*string, error) {
	var resp struct {
		PieceData map[string]*string `json:"pieceData"`
	}
	if err := c.get(ctx, "/api/v1/bridge/pieces/data", &resp); err != nil {
		return nil, err
	}
	return resp.PieceData, nil
}

// RegistryAddress returns the registry the daemon reads
func (c *Client) RegistryAddress(ctx context.Context) (string, error) {
	var resp struct {
		RegistryAddress string `json:"registryAddress"`
	}
	if err := c.get(ctx, "/api/v1/bridge/registry", &resp); err != nil {
		return "", err
	}
	return resp.RegistryAddress, nil
}

// Status returns the sync engine status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.get(ctx, "/api/v1/bridge/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Alerts returns recent failed user actions
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var resp struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.get(ctx, "/api/v1/bridge/alerts", &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// PendingPiece returns the staged piece
func (c *Client) PendingPiece(ctx context.Context) (*PendingPiece, error) {
	var resp PendingPiece
	if err := c.get(ctx, "/api/v1/bridge/pending", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPendingPiece stages a piece
func (c *Client) SetPendingPiece(ctx context.Context, p PendingPiece) error {
	return c.send(ctx, http.MethodPut, "/api/v1/bridge/pending", p, nil)
}

// ClearPendingPiece empties the staging slot
func (c *Client) ClearPendingPiece(ctx context.Context) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/bridge/pending", nil, nil)
}

// CreatePiece submits a create-piece transaction. It reports whether the
// wallet accepted it.
func (c *Client) CreatePiece(ctx context.Context, pieceData, remixedFrom string) (bool, error) {
	req := map[string]string{"pieceData": pieceData}
	if remixedFrom != "" {
		req["remixedFrom"] = remixedFrom
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/bridge/pieces", req, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// RefreshVaultAddress asks the daemon to re-resolve the vault. It returns nil
// when the user has no vault.
func (c *Client) RefreshVaultAddress(ctx context.Context) (*string, error) {
	var resp struct {
		VaultAddress *string `json:"vaultAddress"`
	}
	err := c.send(ctx, http.MethodPost, "/api/v1/bridge/vault/refresh", nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.VaultAddress, nil
}

// Connect connects the daemon's wallet session, as address when non-empty
func (c *Client) Connect(ctx context.Context, address string) (*WalletStatus, error) {
	var body any
	if address != "" {
		body = map[string]string{"address": address}
	}
	var resp WalletStatus
	if err := c.send(ctx, http.MethodPost, "/api/v1/bridge/wallet/connect", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disconnect disconnects the daemon's wallet session
func (c *Client) Disconnect(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/v1/bridge/wallet/disconnect", nil, nil)
}

// Transactions lists recorded wallet requests. An empty wallet selects the
// connected one.
func (c *Client) Transactions(ctx context.Context, wallet string, limit int) ([]Transaction, error) {
	q := url.Values{}
	if wallet != "" {
		q.Set("wallet", wallet)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Data []Transaction `json:"data"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
