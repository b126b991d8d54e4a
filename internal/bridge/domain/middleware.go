package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/echoes/internal/chains/ton"
)

// LoggingMiddleware returns a service middleware that logs the bridge actions.
// Getters pass through unlogged.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			Service: next,
			logger:  logger,
		}
	}
}

type loggingMiddleware struct {
	Service
	logger *slog.Logger
}

func (m *loggingMiddleware) RefreshVaultAddress(ctx context.Context) *string {
	start := time.Now()
	vault := m.Service.RefreshVaultAddress(ctx)
	m.logger.Info("RefreshVaultAddress",
		"found", vault != nil,
		"duration", time.Since(start),
	)
	return vault
}

func (m *loggingMiddleware) SaveAudioGraph(ctx context.Context, graph string) bool {
	start := time.Now()
	ok := m.Service.SaveAudioGraph(ctx, graph)
	m.logger.Info("SaveAudioGraph",
		"bytes", len(graph),
		"ok", ok,
		"duration", time.Since(start),
	)
	return ok
}

func (m *loggingMiddleware) LoadAudioGraph(ctx context.Context, nftAddress string) *string {
	start := time.Now()
	graph := m.Service.LoadAudioGraph(ctx, nftAddress)
	m.logger.Info("LoadAudioGraph",
		"address", ton.FormatAddress(nftAddress),
		"found", graph != nil,
		"duration", time.Since(start),
	)
	return graph
}

func (m *loggingMiddleware) CreateNewPiece(ctx context.Context, pieceData, remixedFrom string) (bool, error) {
	start := time.Now()
	ok, err := m.Service.CreateNewPiece(ctx, pieceData, remixedFrom)
	m.logger.Info("CreateNewPiece",
		"bytes", len(pieceData),
		"remix", remixedFrom != "",
		"ok", ok,
		"duration", time.Since(start),
		"error", err,
	)
	return ok, err
}
