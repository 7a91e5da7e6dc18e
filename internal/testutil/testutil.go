// Package testutil holds helpers shared by convmem tests: a scripted
// generator for unit tests and a PostgreSQL handle for integration tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseURLEnv names the variable integration tests read their
// connection string from.
const DatabaseURLEnv = "DATABASE_URL"

// Tables lists every table the SQL store creates, children first.
var Tables = []string{"convmem_summaries", "convmem_messages"}

// TestDB is a pool connected to the integration database.
type TestDB struct {
	Pool *pgxpool.Pool
	URL  string
}

// RequireIntegration skips the test unless DATABASE_URL is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(DatabaseURLEnv) == "" {
		t.Skipf("%s not set, skipping integration test", DatabaseURLEnv)
	}
}

// NewTestDB connects to DATABASE_URL, skipping the test when it is unset.
// The pool is closed when the test ends; Close may also be called early.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	RequireIntegration(t)

	url := os.Getenv(DatabaseURLEnv)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect to %s: %v", DatabaseURLEnv, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping database: %v", err)
	}

	db := &TestDB{Pool: pool, URL: url}
	t.Cleanup(db.Close)
	return db
}

// Close closes the pool. It is safe to call more than once.
func (db *TestDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanTables empties every convmem table in one statement. Tables must
// already exist, so call it after migrating.
func (db *TestDB) CleanTables(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(Tables, ", "))
	return err
}
