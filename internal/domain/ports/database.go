package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX represents a database executor that can be either a pool or a
// transaction, matching the subset of *pgxpool.Pool / pgx.Tx the store layer
// needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

// TransactionManager runs fn within a database transaction, passing the
// transaction executor through the context-free callback so repositories
// can be handed either a pool or an in-flight tx uniformly.
type TransactionManager interface {
	// WithTx executes fn within a read-write transaction acquired from the pool.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error

	// WithReadOnlyTx executes fn within a read-only transaction for
	// consistent multi-statement reads.
	WithReadOnlyTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// DBPort is the full database capability surface components depend on.
type DBPort interface {
	Pool() *pgxpool.Pool
	TransactionManager
}
