package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/foxvalleyai/website/internal/config"
	"github.com/foxvalleyai/website/storage"
	bboltstorage "github.com/foxvalleyai/website/storage/bbolt"
	"github.com/foxvalleyai/website/storage/memory"
	"github.com/foxvalleyai/website/storage/postgres"
	"github.com/foxvalleyai/website/storage/sqlite"
)

// openRepository opens the configured backend. SQL backends are migrated
// to the latest schema before they are returned.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage.Repository, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("Using in-memory storage; all data is lost on exit")
		return memory.NewRepository(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.BoltPath(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return repo, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return repo, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
