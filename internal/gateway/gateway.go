// Package gateway calls contract getters on the chain-indexing API. Every call
// goes through the shared scheduler so all callers share one request budget.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/observability/metrics"
	"github.com/pendergraft/echoes/internal/scheduler"
)

// maxResponseBytes caps how much of a getter response is read.
const maxResponseBytes = 10 << 20

// Stack entry types returned by the indexing API.
const (
	StackNum  = "num"
	StackCell = "cell"
	StackNull = "null"
)

// StackEntry is one value of a getter's result stack.
type StackEntry struct {
	Type string `json:"type"`
	Num  string `json:"num,omitempty"`
	Cell string `json:"cell,omitempty"`
}

// GetterResult is the decoded response of a getter call.
type GetterResult struct {
	Success  bool            `json:"success"`
	ExitCode int             `json:"exit_code"`
	Stack    []StackEntry    `json:"stack"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// Usable reports whether the call succeeded with exactly n stack entries.
// A result that fails this check carries no data.
func (r *GetterResult) Usable(n int) bool {
	return r != nil && r.Success && len(r.Stack) == n
}

// Client calls contract getters through a scheduler
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	sched      *scheduler.Scheduler
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithToken sets the bearer token sent with every call
func WithToken(token string) Option {
	return func(client *Client) {
		client.token = token
	}
}

// New creates a gateway client for the accounts endpoint at baseURL.
func New(baseURL string, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sched:  sched,
		logger: logger.With("component", "gateway"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CallContractGetter runs a getter on the contract at address. The call is
// queued on the scheduler and returns once it has executed.
func (c *Client) CallContractGetter(ctx context.Context, address, method string, args ...string) (*GetterResult, error) {
	callCtx := fmt.Sprintf("%s(%s)", method, strings.Join(args, ", "))
	start := time.Now()

	result, err := scheduler.Do(ctx, c.sched, func(ctx context.Context) (*GetterResult, error) {
		return c.call(ctx, address, method, args)
	})
	if err != nil {
		te := HandleError(err, callCtx)
		metrics.GatewayCall(method, strings.ToLower(string(te.Code)), time.Since(start))
		c.logger.Error("contract getter failed",
			"call", callCtx,
			"address", ton.FormatAddress(address),
			"code", te.Code,
			"error", err,
		)
		return nil, te
	}

	metrics.GatewayCall(method, "ok", time.Since(start))
	return result, nil
}

func (c *Client) call(ctx context.Context, address, method string, args []string) (*GetterResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.getterURL(address, method, args), nil)
	if err != nil {
		return nil, NewError(CodeUnknown, "building request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewError(CodeAPI,
			fmt.Sprintf("HTTP error! Status: %d, Response: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var result GetterResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, NewError(CodeAPI, "decoding response", err)
	}
	if len(result.Error) > 0 && string(result.Error) != "null" {
		return nil, NewError(CodeAPI, "TON API error: "+errorText(result.Error), nil)
	}

	return &result, nil
}

// getterURL builds {base}/{address}/methods/{method}?args=a,b with each
// argument escaped individually.
func (c *Client) getterURL(address, method string, args []string) string {
	u := fmt.Sprintf("%s/%s/methods/%s", c.baseURL, url.PathEscape(address), url.PathEscape(method))
	if len(args) == 0 {
		return u
	}
	escaped := make([]string, len(args))
	for i, a := range args {
		escaped[i] = url.QueryEscape(a)
	}
	return u + "?args=" + strings.Join(escaped, ",")
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// ParseCell decodes a hex-encoded cell from a stack entry.
func (c *Client) ParseCell(hexData string) (*cell.Cell, error) {
	root, err := ton.ParseCell(hexData)
	if err != nil {
		return nil, NewError(CodeContract, "parseCell", err)
	}
	return root, nil
}

// FormatAddress truncates an address for display.
func (c *Client) FormatAddress(address string) string {
	return ton.FormatAddress(address)
}

// classifyTransport maps a failed round trip onto the error taxonomy.
func classifyTransport(err error) *TonError {
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.As(err, &opErr):
		return NewError(CodeNetwork, "request failed", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(CodeNetwork, "request timed out", err)
	default:
		return NewError(CodeUnknown, "request failed", err)
	}
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
