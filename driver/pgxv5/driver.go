// Package pgxv5 stores convmem sessions in PostgreSQL through a pgx/v5 pool.
//
// It is the driver to prefer: caller transactions nest as savepoints, and
// GetListener opens dedicated LISTEN connections for change notifications.
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	drv := pgxv5.New(pool)
//	_ = drv.Migrate(ctx)
//	pipeline, _ := convmem.New(convmem.Config{Store: drv.GetStore(), Generator: gen})
package pgxv5

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/convmem/driver"
	"github.com/youssefsiam38/convmem/driver/sqlstore"
	"github.com/youssefsiam38/convmem/storage"
)

// Driver implements driver.Driver for pgx/v5.
type Driver struct {
	pool *pgxpool.Pool
}

var _ driver.Driver[pgx.Tx] = (*Driver)(nil)

// New creates a driver over pool. The pool is owned by the caller.
func New(pool *pgxpool.Pool) *Driver {
	return &Driver{pool: pool}
}

func (d *Driver) GetExecutor() driver.Executor {
	return executor{q: d.pool}
}

func (d *Driver) UnwrapExecutor(tx pgx.Tx) driver.ExecutorTx {
	return &executorTx{executor: executor{q: tx}, tx: tx}
}

// UnwrapTx returns the pgx.Tx behind an ExecutorTx created by this driver.
// It panics on executors from other drivers.
func (d *Driver) UnwrapTx(execTx driver.ExecutorTx) pgx.Tx {
	return execTx.(*executorTx).tx
}

func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return d.GetExecutor().Begin(ctx)
}

func (d *Driver) PoolIsSet() bool {
	return d.pool != nil
}

// Pool returns the underlying pool.
func (d *Driver) Pool() *pgxpool.Pool {
	return d.pool
}

// GetStore returns the SQL store running on this pool. Unique violations
// and serialization failures are classified through SQLState.
func (d *Driver) GetStore() storage.Store {
	return sqlstore.New(d.GetExecutor(), sqlstore.WithSQLState(SQLState))
}

// Migrate creates the convmem tables and indexes if they do not exist.
func (d *Driver) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, d.GetExecutor())
}

func (d *Driver) SupportsListener() bool {
	return true
}

// GetListener returns a new Listener. Each call holds its own pool
// connection once Listen is called; Close releases it.
func (d *Driver) GetListener(ctx context.Context) (driver.Listener, error) {
	return NewListener(d.pool), nil
}

// SQLState returns the SQLSTATE code of a PostgreSQL error, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// querier is the method set pgxpool.Pool and pgx.Tx share.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// executor runs statements on a pool or a transaction. Begin on a
// transaction opens a savepoint.
type executor struct {
	q querier
}

func (e executor) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := e.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &executorTx{executor: executor{q: tx}, tx: tx}, nil
}

func (e executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e executor) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	return e.q.Query(ctx, sql, args...)
}

func (e executor) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return e.q.QueryRow(ctx, sql, args...)
}

type executorTx struct {
	executor
	tx pgx.Tx
}

func (e *executorTx) Commit(ctx context.Context) error {
	return e.tx.Commit(ctx)
}

func (e *executorTx) Rollback(ctx context.Context) error {
	return e.tx.Rollback(ctx)
}
