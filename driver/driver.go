// Package driver provides the database driver abstractions used by the SQL
// store.
//
// A driver wraps a native connection pool (pgx/v5 or database/sql) behind the
// Executor contract so that one store implementation serves both. Usage:
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	drv := pgxv5.New(pool)
//	store := drv.GetStore()
//
// or, with database/sql and lib/pq:
//
//	db, _ := sql.Open("postgres", databaseURL)
//	drv := databasesql.New(db)
//	store := drv.GetStore()
package driver

import (
	"context"

	"github.com/youssefsiam38/convmem/storage"
)

// Driver adapts a native pool to the store. TTx is the pool's native
// transaction type: pgx.Tx for pgxv5, *sql.Tx for databasesql.
type Driver[TTx any] interface {
	// PoolIsSet reports whether a pool was supplied. Drivers built without
	// one can still unwrap caller transactions.
	PoolIsSet() bool
	GetExecutor() Executor
	Begin(ctx context.Context) (ExecutorTx, error)

	// UnwrapExecutor and UnwrapTx convert between the native transaction and
	// ExecutorTx, so a caller's transaction can be carried by WithExecutor.
	UnwrapExecutor(tx TTx) ExecutorTx
	UnwrapTx(execTx ExecutorTx) TTx

	GetStore() storage.Store

	// Migrate creates the convmem tables if they are missing.
	Migrate(ctx context.Context) error

	// GetListener returns nil, nil when SupportsListener is false.
	SupportsListener() bool
	GetListener(ctx context.Context) (Listener, error)
}
