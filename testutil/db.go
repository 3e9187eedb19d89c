// Package testutil holds helpers shared by the Postgres integration tests.
// Every helper that needs a database skips the test when TEST_DATABASE_URL
// is unset, so `go test ./...` stays green on machines without Postgres.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" database/sql driver

	"github.com/pkordes/ride-duration/migrations"
)

const dsnEnv = "TEST_DATABASE_URL"

// NewPool returns a pgx pool on the test database, closed at test cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}
	return pool
}

// NewSQLDB returns a database/sql handle on the test database. The migration
// tests drive goose through it.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("testutil.NewSQLDB: ping: %v", err)
	}
	return db
}

// MigrateUp brings the schema at dsn up to date. TestMain functions call it
// once per package before any test runs.
func MigrateUp(ctx context.Context, dsn string) error {
	if _, err := migrations.Up(ctx, dsn); err != nil {
		return fmt.Errorf("testutil.MigrateUp: %w", err)
	}
	return nil
}

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping integration test", dsnEnv)
	}
	return dsn
}
