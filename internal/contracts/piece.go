package contracts

import (
	"context"
	"encoding/base64"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
)

// Piece reads individual EchoPiece contracts.
type Piece struct {
	accessor
}

// GetPieceData returns the piece content as base64. Responses without data
// and content that fails to decode both yield nil; decode failures are
// logged.
func (p *Piece) GetPieceData(ctx context.Context, pieceAddress string) (*string, error) {
	if pieceAddress == "" {
		return nil, nil
	}

	res, err := withAddressFallback(ctx, p.accessor, pieceAddress, func(ctx context.Context, addr string) (*gateway.GetterResult, error) {
		return p.caller.CallContractGetter(ctx, addr, MethodPieceData)
	})
	if err != nil {
		return nil, err
	}
	if !res.Usable(1) || res.Stack[0].Type != gateway.StackCell || res.Stack[0].Cell == "" {
		return nil, nil
	}

	root, err := parseCell(res.Stack[0])
	if err != nil {
		p.logger.Error("processing piece data", "piece", ton.FormatAddress(pieceAddress), "error", err)
		return nil, nil
	}
	raw, err := ton.ReadSnake(root.BeginParse())
	if err != nil {
		p.logger.Error("processing piece data", "piece", ton.FormatAddress(pieceAddress), "error", err)
		return nil, nil
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	return &encoded, nil
}

// GetRemixedFromAddress returns the parent piece in checksummed form, or nil
// when the piece is not a remix.
func (p *Piece) GetRemixedFromAddress(ctx context.Context, pieceAddress string) (*string, error) {
	if pieceAddress == "" {
		return nil, nil
	}

	res, err := withAddressFallback(ctx, p.accessor, pieceAddress, func(ctx context.Context, addr string) (*gateway.GetterResult, error) {
		return p.caller.CallContractGetter(ctx, addr, MethodRemixedFrom)
	})
	if err != nil {
		return nil, err
	}
	if !res.Usable(1) || res.Stack[0].Type != gateway.StackCell {
		return nil, nil
	}
	return p.readAddressCell(res.Stack[0])
}

// PieceContent is one piece's data and remix parent. Err holds the first
// lookup failure; the other fields are nil past it.
type PieceContent struct {
	Data        *string
	RemixedFrom *string
	Err         error
}

// GetAllPieceData reads every piece in order. A piece whose lookups fail is
// reported through its Err and the walk continues; only cancellation stops it.
func GetAllPieceData(ctx context.Context, r Reader, pieceAddresses []string) (map[string]PieceContent, error) {
	out := make(map[string]PieceContent, len(pieceAddresses))
	for _, addr := range pieceAddresses {
		var pc PieceContent
		pc.Data, pc.Err = r.GetPieceData(ctx, addr)
		if pc.Err == nil {
			pc.RemixedFrom, pc.Err = r.GetRemixedFromAddress(ctx, addr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[addr] = pc
	}
	return out, nil
}
