// Package databasesql provides a database/sql driver implementation for
// convmem, using lib/pq as the PostgreSQL driver.
//
// Usage:
//
//	db, _ := sql.Open("postgres", databaseURL)
//	drv := databasesql.New(db)
//	store := drv.GetStore()
//
// database/sql pools connections, so dedicated LISTEN connections are not
// supported; SupportsListener returns false.
package databasesql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/youssefsiam38/convmem/driver"
	"github.com/youssefsiam38/convmem/driver/sqlstore"
	"github.com/youssefsiam38/convmem/storage"
)

// Driver implements driver.Driver using database/sql.
type Driver struct {
	db *sql.DB
}

// New creates a new database/sql driver using the provided connection pool.
func New(db *sql.DB) *Driver {
	return &Driver{db: db}
}

// Open opens a PostgreSQL pool through lib/pq and wraps it.
func Open(dataSourceName string) (*Driver, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// GetExecutor returns an executor for non-transactional operations.
func (d *Driver) GetExecutor() driver.Executor {
	return &Executor{db: d.db}
}

// UnwrapExecutor converts a *sql.Tx to an ExecutorTx.
func (d *Driver) UnwrapExecutor(tx *sql.Tx) driver.ExecutorTx {
	return &ExecutorTx{tx: tx}
}

// UnwrapTx extracts the *sql.Tx from an ExecutorTx.
func (d *Driver) UnwrapTx(execTx driver.ExecutorTx) *sql.Tx {
	return execTx.(*ExecutorTx).tx
}

// Begin starts a new transaction and returns an ExecutorTx.
func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return d.GetExecutor().Begin(ctx)
}

// PoolIsSet returns true if the driver has a database pool configured.
func (d *Driver) PoolIsSet() bool {
	return d.db != nil
}

// GetStore returns a Store implementation using this driver.
func (d *Driver) GetStore() storage.Store {
	return sqlstore.New(d.GetExecutor(), sqlstore.WithSQLState(SQLState))
}

// Migrate creates the convmem schema.
func (d *Driver) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, d.GetExecutor())
}

// SupportsListener returns false; use the pgx/v5 driver for notifications.
func (d *Driver) SupportsListener() bool {
	return false
}

// GetListener returns nil.
func (d *Driver) GetListener(ctx context.Context) (driver.Listener, error) {
	return nil, nil
}

// DB returns the underlying database connection.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Close closes the underlying pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

// SQLState returns the SQLSTATE code of a lib/pq error, or "".
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Compile-time check
var _ driver.Driver[*sql.Tx] = (*Driver)(nil)
