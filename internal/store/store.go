package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/querysql"
	"github.com/roach88/polyref/internal/schema"
)

// SchemaListener is notified after the store changed the schema.
// migrate.Migrator implements it.
type SchemaListener interface {
	OnEntityTypeCreate(ctx context.Context, et model.EntityType) error
	OnFieldStorageCreate(ctx context.Context, fs model.FieldStorage) error
}

// Store persists entity.Record values in SQL tables.
type Store struct {
	db       *sql.DB
	schema   schema.Schema
	dialect  schema.Dialect
	compiler *querysql.SQLCompiler
	registry *entity.MemoryRegistry

	mu        sync.RWMutex
	listeners []SchemaListener
}

var _ entity.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRegistry makes the store register entity types and field storages
// in r instead of a private registry.
func WithRegistry(r *entity.MemoryRegistry) Option {
	return func(s *Store) { s.registry = r }
}

// WithListener adds a schema listener.
func WithListener(l SchemaListener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// WithSchema overrides the schema implementation used for DDL and
// introspection.
func WithSchema(sc schema.Schema) Option {
	return func(s *Store) { s.schema = sc }
}

// New wraps an open database. Table names get prefix.
func New(db *sql.DB, dialect schema.Dialect, prefix string, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  dialect,
		compiler: querysql.NewSQLCompiler(dialect),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schema == nil {
		s.schema = schema.NewSQLSchema(db, dialect, prefix)
	}
	if s.registry == nil {
		s.registry = entity.NewMemoryRegistry()
	}
	return s
}

// Open creates or opens a SQLite database at the given path with the
// mattn driver.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	return openSQLite(context.Background(), "sqlite3", path, "", opts...)
}

// Connect opens a database by driver name: "sqlite3" (mattn), "sqlite"
// (modernc), "mysql" or "postgres".
func Connect(ctx context.Context, driver, dsn, prefix string, opts ...Option) (*Store, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return openSQLite(ctx, driver, dsn, prefix, opts...)
	case "mysql":
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return New(db, schema.MySQL, prefix, opts...), nil
	case "postgres":
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		gs, err := schema.NewGormSchema(gdb, prefix)
		if err != nil {
			db.Close()
			return nil, err
		}
		return New(db, schema.Postgres, prefix, append([]Option{WithSchema(gs)}, opts...)...), nil
	default:
		return nil, fmt.Errorf("connect: unknown driver %q", driver)
	}
}

func openSQLite(ctx context.Context, driver, path, prefix string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return New(db, schema.SQLite, prefix, opts...), nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB { return s.db }

// Schema returns the schema used for DDL.
func (s *Store) Schema() schema.Schema { return s.schema }

// Dialect returns the SQL dialect.
func (s *Store) Dialect() schema.Dialect { return s.dialect }

// Registry returns the registry the store installs types into.
func (s *Store) Registry() *entity.MemoryRegistry { return s.registry }

// AddListener registers l for schema events.
func (s *Store) AddListener(l SchemaListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) snapshotListeners() []SchemaListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SchemaListener(nil), s.listeners...)
}

// notify calls fn for every listener. Listener errors are logged and the
// first one is returned after all listeners ran.
func (s *Store) notify(event, subject string, fn func(SchemaListener) error) error {
	var first error
	for _, l := range s.snapshotListeners() {
		if err := fn(l); err != nil {
			slog.Warn("schema listener failed", "event", event, "subject", subject, "error", err)
			if first == nil {
				first = fmt.Errorf("%s %s: %w", event, subject, err)
			}
		}
	}
	return first
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
