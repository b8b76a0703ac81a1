package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Environment variables enabling live tests against server databases.
const (
	EnvPostgresDSN = "POLYREF_TEST_POSTGRES_DSN"
	EnvMySQLDSN    = "POLYREF_TEST_MYSQL_DSN"
)

// OpenSQLite opens a fresh SQLite database file in a temp dir with the
// named driver ("sqlite3" for mattn, "sqlite" for modernc). The database
// is closed when the test ends.
func OpenSQLite(t *testing.T, driver string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driver, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("ping %s: %v", driver, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// OpenServer opens the server database named by env, skipping the test when
// env is unset. driverName is "pgx" or "mysql".
func OpenServer(t *testing.T, driverName, env string) *sql.DB {
	t.Helper()
	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set", env)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		t.Fatalf("open %s: %v", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("ping %s: %v", driverName, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
