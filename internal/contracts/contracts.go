// Package contracts provides typed access to the registry, vault and piece
// contract getters.
package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
)

// Getter names exposed by the EchoRegistry contracts.
const (
	MethodFeeParams      = "getFeeParams"
	MethodSecurityParams = "getSecurityParams"
	MethodVaultAddress   = "getVaultAddress"
	MethodPieceCount     = "getPieceCount"
	MethodPieces         = "getPieces"
	MethodPieceData      = "getData"
	MethodRemixedFrom    = "getRemixedFrom"
)

// PieceKeyBits is the key width of the vault's piece dictionary.
const PieceKeyBits = 16

// Caller executes a contract getter.
type Caller interface {
	CallContractGetter(ctx context.Context, address, method string, args ...string) (*gateway.GetterResult, error)
}

// FeeParams are the registry's deployment fees in nanotons.
type FeeParams struct {
	DeployValue  uint64 `json:"deployValue"`
	MessageValue uint64 `json:"messageValue"`
}

// SecurityParams are the registry's anti-spam settings.
type SecurityParams struct {
	MinActionFee    uint64 `json:"minActionFee"`
	CoolDownSeconds uint64 `json:"coolDownSeconds"`
}

// Reader is the full read surface over the contracts.
type Reader interface {
	GetFeeParams(ctx context.Context) (*FeeParams, error)
	GetSecurityParams(ctx context.Context) (*SecurityParams, error)
	GetVaultAddress(ctx context.Context, userAddress string) (*string, error)
	GetPieceCount(ctx context.Context, vaultAddress string) (*uint64, error)
	GetPieceAddresses(ctx context.Context, vaultAddress string) ([]string, error)
	GetPieceData(ctx context.Context, pieceAddress string) (*string, error)
	GetRemixedFromAddress(ctx context.Context, pieceAddress string) (*string, error)
}

// accessor holds what every contract wrapper needs.
type accessor struct {
	caller  Caller
	network ton.Network
	logger  *slog.Logger
}

// withAddressFallback calls fn with the raw form of addr and, if that fails,
// once more with the checksummed form. The last error is returned when both
// attempts fail. Addresses that cannot be parsed are passed through as given.
func withAddressFallback[T any](ctx context.Context, a accessor, addr string, fn func(ctx context.Context, addr string) (T, error)) (T, error) {
	parsed, err := ton.ParseAny(addr)
	if err != nil {
		return fn(ctx, addr)
	}

	v, err := fn(ctx, ton.Raw(parsed))
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, err
	}

	friendly := a.network.Friendly(parsed)
	a.logger.Warn("raw address call failed, retrying with checksummed address",
		"address", ton.FormatAddress(friendly),
		"error", err,
	)
	return fn(ctx, friendly)
}

// parseHexUint parses a base-16 stack number such as "0x2a".
func parseHexUint(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, gateway.NewError(gateway.CodeContract, fmt.Sprintf("invalid stack number %q", s), err)
	}
	return n, nil
}

// parseCell decodes the cell of a stack entry.
func parseCell(entry gateway.StackEntry) (*cell.Cell, error) {
	root, err := ton.ParseCell(entry.Cell)
	if err != nil {
		return nil, gateway.NewError(gateway.CodeContract, "parseCell", err)
	}
	return root, nil
}

// readAddressCell decodes a cell holding a single address. A nil address
// (addr_none) yields nil.
func (a accessor) readAddressCell(entry gateway.StackEntry) (*string, error) {
	root, err := parseCell(entry)
	if err != nil {
		return nil, err
	}
	addr, err := ton.ReadAddress(root.BeginParse())
	if err != nil {
		return nil, gateway.NewError(gateway.CodeContract, "reading address", err)
	}
	if addr == nil {
		return nil, nil
	}
	s := a.network.Friendly(addr)
	return &s, nil
}

// Contracts bundles the three accessors behind Reader.
type Contracts struct {
	*Registry
	*Vault
	*Piece
}

// New creates the accessors for the registry at registryAddress.
func New(caller Caller, registryAddress string, network ton.Network, logger *slog.Logger) *Contracts {
	a := accessor{
		caller:  caller,
		network: network,
		logger:  logger.With("component", "contracts"),
	}
	return &Contracts{
		Registry: &Registry{accessor: a, address: registryAddress},
		Vault:    &Vault{accessor: a},
		Piece:    &Piece{accessor: a},
	}
}
