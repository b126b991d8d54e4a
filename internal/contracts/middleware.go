package contracts

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a Reader middleware that logs every getter.
func LoggingMiddleware(logger *slog.Logger) func(Reader) Reader {
	return func(next Reader) Reader {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Reader
	logger *slog.Logger
}

func (m *loggingMiddleware) GetFeeParams(ctx context.Context) (*FeeParams, error) {
	start := time.Now()
	params, err := m.next.GetFeeParams(ctx)
	m.logger.Debug("GetFeeParams",
		"found", params != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return params, err
}

func (m *loggingMiddleware) GetSecurityParams(ctx context.Context) (*SecurityParams, error) {
	start := time.Now()
	params, err := m.next.GetSecurityParams(ctx)
	m.logger.Debug("GetSecurityParams",
		"found", params != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return params, err
}

func (m *loggingMiddleware) GetVaultAddress(ctx context.Context, userAddress string) (*string, error) {
	start := time.Now()
	vault, err := m.next.GetVaultAddress(ctx, userAddress)
	m.logger.Info("GetVaultAddress",
		"user", userAddress,
		"found", vault != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return vault, err
}

func (m *loggingMiddleware) GetPieceCount(ctx context.Context, vaultAddress string) (*uint64, error) {
	start := time.Now()
	count, err := m.next.GetPieceCount(ctx, vaultAddress)
	m.logger.Debug("GetPieceCount",
		"vault", vaultAddress,
		"found", count != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return count, err
}

func (m *loggingMiddleware) GetPieceAddresses(ctx context.Context, vaultAddress string) ([]string, error) {
	start := time.Now()
	addresses, err := m.next.GetPieceAddresses(ctx, vaultAddress)
	m.logger.Debug("GetPieceAddresses",
		"vault", vaultAddress,
		"count", len(addresses),
		"duration", time.Since(start),
		"error", err,
	)
	return addresses, err
}

func (m *loggingMiddleware) GetPieceData(ctx context.Context, pieceAddress string) (*string, error) {
	start := time.Now()
	data, err := m.next.GetPieceData(ctx, pieceAddress)
	m.logger.Debug("GetPieceData",
		"piece", pieceAddress,
		"found", data != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return data, err
}

func (m *loggingMiddleware) GetRemixedFromAddress(ctx context.Context, pieceAddress string) (*string, error) {
	start := time.Now()
	parent, err := m.next.GetRemixedFromAddress(ctx, pieceAddress)
	m.logger.Debug("GetRemixedFromAddress",
		"piece", pieceAddress,
		"remix", parent != nil,
		"duration", time.Since(start),
		"error", err,
	)
	return parent, err
}
