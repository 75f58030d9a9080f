// Package postgres implements the persistence adapters (IdempotencyStore,
// the entity repositories, and RateLimiterStore) over jackc/pgx: one file
// per repository, a shared pool/transaction-manager wrapper, and thin
// row<->model conversion helpers (nullable and orEmpty) over hand-written
// SQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
)

// DB implements ports.DBPort over a *pgxpool.Pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB wraps an already-connected pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Pool implements ports.DBPort.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// WithTx implements ports.TransactionManager with a read-write transaction.
// This is where the row locks taken by GetForUpdate calls live:
// the lock is held for the lifetime of fn and released on commit/rollback.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithReadOnlyTx implements ports.TransactionManager for consistent
// multi-statement reads (e.g. an Order plus its Transactions).
func (d *DB) WithReadOnlyTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(ctx, tx)
}

var _ ports.DBPort = (*DB)(nil)
