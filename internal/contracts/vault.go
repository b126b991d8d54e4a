package contracts

import (
	"context"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
)

// Vault reads a user's EchoVault contract.
type Vault struct {
	accessor
}

// GetPieceCount returns the number of pieces in the vault. An empty vault
// address or a response without data yields nil.
func (v *Vault) GetPieceCount(ctx context.Context, vaultAddress string) (*uint64, error) {
	if vaultAddress == "" {
		return nil, nil
	}

	return withAddressFallback(ctx, v.accessor, vaultAddress, func(ctx context.Context, addr string) (*uint64, error) {
		res, err := v.caller.CallContractGetter(ctx, addr, MethodPieceCount)
		if err != nil {
			return nil, err
		}
		if !res.Usable(1) || res.Stack[0].Type != gateway.StackNum {
			return nil, nil
		}
		n, err := parseHexUint(res.Stack[0].Num)
		if err != nil {
			return nil, err
		}
		return &n, nil
	})
}

// GetPieceAddresses enumerates the vault's pieces in dictionary key order.
// A successful call with an absent or empty dictionary yields an empty,
// non-nil slice. nil means no data or, with an error, that both address
// forms failed.
func (v *Vault) GetPieceAddresses(ctx context.Context, vaultAddress string) ([]string, error) {
	if vaultAddress == "" {
		return nil, nil
	}

	return withAddressFallback(ctx, v.accessor, vaultAddress, func(ctx context.Context, addr string) ([]string, error) {
		res, err := v.caller.CallContractGetter(ctx, addr, MethodPieces)
		if err != nil {
			return nil, err
		}
		if !res.Usable(1) {
			return nil, nil
		}

		entry := res.Stack[0]
		if entry.Type == gateway.StackNull || (entry.Type == gateway.StackCell && entry.Cell == "") {
			return []string{}, nil
		}
		if entry.Type != gateway.StackCell {
			return nil, nil
		}

		root, err := parseCell(entry)
		if err != nil {
			return nil, err
		}
		entries, err := ton.ReadDictionary(root, PieceKeyBits)
		if err != nil {
			return nil, gateway.NewError(gateway.CodeContract, "reading piece dictionary", err)
		}

		addresses := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Address == nil {
				continue
			}
			addresses = append(addresses, v.network.Friendly(e.Address))
		}
		return addresses, nil
	})
}
