// Package store selects the ledger store named by the configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
	"grain-ledger/internal/db"
	"grain-ledger/internal/store/memory"
	"grain-ledger/internal/store/postgres"
	"grain-ledger/internal/store/sqlite"
)

// Open returns the configured store and a function releasing its resources.
// Postgres schemas are not migrated here; run cmd/migrate first.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (core.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory store; nothing survives a restart")
		return memory.NewStore(), func() {}, nil

	case config.DriverSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return s, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		logger.Info("postgres pool ready")
		return postgres.NewStore(pool, logger.Named("postgres")), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
