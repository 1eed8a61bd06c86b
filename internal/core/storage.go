package core

import (
	"context"
	"fmt"
	"log/slog"

	"alienrisk/internal/config"
	"alienrisk/internal/infra/persistence/badger"
	"alienrisk/internal/infra/persistence/file"
	"alienrisk/internal/infra/persistence/memory"
	"alienrisk/internal/infra/persistence/postgres"
	"alienrisk/internal/infra/persistence/sqlite"
	"alienrisk/pkg/domain"
)

// OpenBackend selects the persistence backend named by cfg.Driver. An empty
// driver means the file backend. logger, when non-nil, receives badger's
// internal log lines.
func OpenBackend(ctx context.Context, cfg config.Storage, logger *slog.Logger) (domain.Backend, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageFile
	}
	var (
		backend domain.Backend
		err     error
	)
	switch driver {
	case config.StorageMemory:
		backend = memory.NewStore()
	case config.StorageFile:
		backend, err = asBackend(file.New(cfg.FileDir))
	case config.StorageSQLite:
		backend, err = asBackend(sqlite.NewStore(cfg.SQLitePath))
	case config.StoragePostgres:
		backend, err = asBackend(postgres.NewStore(ctx, cfg.PostgresDSN))
	case config.StorageBadger:
		backend, err = asBackend(badger.New(badger.Config{Path: cfg.BadgerPath, SyncWrites: true, Logger: logger}))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", driver, err)
	}
	return backend, nil
}

// asBackend keeps a failed constructor's typed nil out of the interface.
func asBackend[T domain.Backend](b T, err error) (domain.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
