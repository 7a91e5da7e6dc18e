package databasesql

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/youssefsiam38/convmem/internal/testutil"
	"github.com/youssefsiam38/convmem/storage/storagetest"
)

func TestSQLState(t *testing.T) {
	if got := SQLState(&pq.Error{Code: "40001"}); got != "40001" {
		t.Errorf("SQLState() = %q, want 40001", got)
	}
	if got := SQLState(errors.New("boom")); got != "" {
		t.Errorf("SQLState() = %q, want empty", got)
	}
}

func TestDriver_NoListener(t *testing.T) {
	drv := New(nil)
	if drv.SupportsListener() {
		t.Error("database/sql driver should not support listeners")
	}
	if drv.PoolIsSet() {
		t.Error("PoolIsSet() should be false without a pool")
	}
}

func TestIntegration_Store_Conformance(t *testing.T) {
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	defer db.Close()

	drv, err := Open(db.URL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer drv.Close()

	ctx := context.Background()
	if err := drv.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	storagetest.Run(t, drv.GetStore())
}
