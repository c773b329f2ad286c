package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/config"
	"github.com/MeKo-Tech/idscan/internal/scan"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// newScanService wires the backend, cascade, parser and usage store
// described by cfg. The caller closes the returned store.
func newScanService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*scan.Service, stats.Store, error) {
	backend, err := barcode.NewBackend()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create barcode backend: %w", err)
	}

	c, err := cfg.NewCascade(backend, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build decoder cascade: %w", err)
	}

	store, err := stats.Open(ctx, cfg.ToStatsConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stats store: %w", err)
	}

	return scan.NewService(c, cfg.NewParser(), store, cfg.ToScanConfig(), logger), store, nil
}

func closeStore(store stats.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("Error closing stats store", "error", err)
	}
}
