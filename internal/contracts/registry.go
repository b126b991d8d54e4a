package contracts

import (
	"context"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/gateway"
)

// Registry reads the top-level EchoRegistry contract.
type Registry struct {
	accessor
	address string
}

// Address returns the registry contract address.
func (r *Registry) Address() string {
	return r.address
}

// GetFeeParams returns the registry's fee parameters, or nil when the getter
// reports no data.
func (r *Registry) GetFeeParams(ctx context.Context) (*FeeParams, error) {
	a, b, ok, err := r.twoNumbers(ctx, MethodFeeParams)
	if err != nil || !ok {
		return nil, err
	}
	return &FeeParams{DeployValue: a, MessageValue: b}, nil
}

// GetSecurityParams returns the registry's security parameters, or nil when
// the getter reports no data.
func (r *Registry) GetSecurityParams(ctx context.Context) (*SecurityParams, error) {
	a, b, ok, err := r.twoNumbers(ctx, MethodSecurityParams)
	if err != nil || !ok {
		return nil, err
	}
	return &SecurityParams{MinActionFee: a, CoolDownSeconds: b}, nil
}

func (r *Registry) twoNumbers(ctx context.Context, method string) (uint64, uint64, bool, error) {
	res, err := withAddressFallback(ctx, r.accessor, r.address, func(ctx context.Context, addr string) (*gateway.GetterResult, error) {
		return r.caller.CallContractGetter(ctx, addr, method)
	})
	if err != nil {
		return 0, 0, false, err
	}
	if !res.Usable(2) || res.Stack[0].Type != gateway.StackNum || res.Stack[1].Type != gateway.StackNum {
		return 0, 0, false, nil
	}

	a, err := parseHexUint(res.Stack[0].Num)
	if err != nil {
		return 0, 0, false, err
	}
	b, err := parseHexUint(res.Stack[1].Num)
	if err != nil {
		return 0, 0, false, err
	}
	return a, b, true, nil
}

// GetVaultAddress resolves the vault of userAddress in checksummed form. It
// returns nil when the user has no vault.
func (r *Registry) GetVaultAddress(ctx context.Context, userAddress string) (*string, error) {
	raw, err := ton.NormalizeRaw(userAddress)
	if err != nil {
		return nil, gateway.NewError(gateway.CodeContract, "normalizing user address", err)
	}

	res, err := withAddressFallback(ctx, r.accessor, r.address, func(ctx context.Context, addr string) (*gateway.GetterResult, error) {
		return r.caller.CallContractGetter(ctx, addr, MethodVaultAddress, raw)
	})
	if err != nil {
		return nil, err
	}
	if !res.Usable(1) || res.Stack[0].Type != gateway.StackCell {
		return nil, nil
	}
	return r.readAddressCell(res.Stack[0])
}
