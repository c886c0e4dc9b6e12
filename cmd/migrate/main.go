// migrate applies the embedded Postgres migrations under an advisory lock.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"grain-ledger/internal/config"
	"grain-ledger/internal/db"
	"grain-ledger/internal/logger"
	"grain-ledger/migrations"
)

const migrationLockID = 7462839

func main() {
	log := logger.Must(logger.New())
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		log.Info("nothing to migrate", zap.String("storage", cfg.Storage.Driver))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
		conn.Release()
	}()

	applied, err := migrations.Apply(ctx, pool)
	for _, name := range applied {
		log.Info("migration applied", zap.String("name", name))
	}
	if err != nil {
		return err
	}
	log.Info("all migrations processed", zap.Int("applied", len(applied)))
	return nil
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("another migrator is currently running")
	}
	return conn, nil
}
