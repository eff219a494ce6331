// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGTest opens a test database, migrates it, and returns the *sql.DB plus a
// cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// POSTGRES_URL, when set, points at an existing database (CI provides one).
// Otherwise a throwaway postgres container is started; the test is skipped
// when no container runtime is available. The cleanup function truncates all
// application tables.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	dsn := os.Getenv("POSTGRES_URL")
	var terminate func()
	if dsn == "" {
		dsn, terminate = startContainer(t, ctx)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		truncateAll(ctx, db)
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}

	return db, cleanup
}

// startContainer boots a disposable postgres instance and returns its DSN.
func startContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vendord_test"),
		tcpostgres.WithUsername("vendord"),
		tcpostgres.WithPassword("vendord"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("pgtest: no POSTGRES_URL and container start failed: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		t.Fatalf("pgtest: container connection string: %v", err)
	}

	return dsn, func() { _ = testcontainers.TerminateContainer(ctr) }
}

// migrate applies all goose migrations from the project migrations/ directory.
func migrate(ctx context.Context, db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

// findMigrationsDir walks up from the test working directory to find
// the project-level migrations/ directory.
func findMigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// truncateAll truncates all user-created tables to provide a clean slate
// between tests. The goose bookkeeping table is left alone so reruns skip
// already-applied migrations.
func truncateAll(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename <> 'goose_db_version'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}

	if len(tables) > 0 {
		// Table names come from pg_tables, not user input.
		stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202
		_, _ = db.ExecContext(ctx, stmt)
	}
}
