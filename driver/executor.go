package driver

import "context"

// Row is a single result row. pgx.Row and *sql.Row both satisfy it.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a result set. Callers must Close it and check Err after Next
// returns false.
type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// Executor runs statements against a pool or an open transaction. The SQL
// store only ever talks to this interface, so one store serves both drivers.
type Executor interface {
	// Begin opens a transaction, or a savepoint when the receiver already
	// is one. Compaction relies on this to join a caller's transaction.
	Begin(ctx context.Context) (ExecutorTx, error)

	// Exec returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// ExecutorTx is an open transaction. On a savepoint, Commit releases it and
// Rollback rolls back to it.
type ExecutorTx interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type executorKey struct{}

// WithExecutor returns a context whose store calls run inside tx. A turn run
// with this context stores its messages and any summary in the caller's
// transaction:
//
//	tx, _ := drv.Begin(ctx)
//	result, err := pipeline.Session(id).Turn(driver.WithExecutor(ctx, tx), query)
//	if err != nil {
//	    _ = tx.Rollback(ctx)
//	    return err
//	}
//	_ = tx.Commit(ctx)
func WithExecutor(ctx context.Context, tx ExecutorTx) context.Context {
	return context.WithValue(ctx, executorKey{}, tx)
}

// ExecutorFromContext returns the transaction carried by ctx, or nil.
func ExecutorFromContext(ctx context.Context) ExecutorTx {
	tx, _ := ctx.Value(executorKey{}).(ExecutorTx)
	return tx
}

// ExecutorOr returns the transaction carried by ctx, falling back to def.
func ExecutorOr(ctx context.Context, def Executor) Executor {
	if tx := ExecutorFromContext(ctx); tx != nil {
		return tx
	}
	return def
}
