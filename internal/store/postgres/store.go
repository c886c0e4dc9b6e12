// Package postgres is the production ledger store. Every unit of work runs in
// one SERIALIZABLE transaction; stock rows and the cash register are read
// with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"grain-ledger/internal/core"
)

var _ core.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewStore wraps an open pool. The schema is applied by migrations.Apply.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store.postgres")}
}

// RunInTx runs fn in a serializable transaction and commits when fn succeeds.
// Serialization failures and deadlocks are returned as core.ErrConflict.
func (s *Store) RunInTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&transaction{tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		err = mapError(err)
		if errors.Is(err, core.ErrConflict) {
			s.log.Debug("transaction conflict on commit", zap.Error(err))
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn in a read-only repeatable-read transaction.
func (s *Store) View(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&transaction{tx: tx, readOnly: true}); err != nil {
		return mapError(err)
	}
	return tx.Commit(ctx)
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// mapError turns serialization failures (40001) and deadlocks (40P01) into
// core.ErrConflict so callers can retry the whole operation.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.Message)
	}
	return err
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", core.ErrNotFound, entity, id)
	}
	return fmt.Errorf("failed to load %s %v: %w", entity, id, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// add appends a condition; expr carries one %d for the placeholder number.
func (w *where) add(expr string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(expr, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(p core.Page) string {
	var b strings.Builder
	if p.Limit > 0 {
		w.args = append(w.args, p.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if p.Offset > 0 {
		w.args = append(w.args, p.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}
