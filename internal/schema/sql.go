package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by SQLSchema.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLSchema implements Schema on database/sql.
type SQLSchema struct {
	db      DBTX
	dialect Dialect
	prefix  string
}

// NewSQLSchema returns a Schema for db. prefix is prepended to every table
// name.
func NewSQLSchema(db DBTX, dialect Dialect, prefix string) *SQLSchema {
	return &SQLSchema{db: db, dialect: dialect, prefix: prefix}
}

func (s *SQLSchema) Dialect() Dialect { return s.dialect }

func (s *SQLSchema) PrefixTable(table string) string { return s.prefix + table }

// TableExists reports whether the prefixed table exists.
func (s *SQLSchema) TableExists(ctx context.Context, table string) (bool, error) {
	prefixed := s.PrefixTable(table)
	var q string
	switch s.dialect {
	case SQLite:
		q = "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?"
	case MySQL:
		q = "SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case Postgres:
		q = "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	default:
		return false, fmt.Errorf("table exists: %w: %q", ErrUnknownDialect, s.dialect)
	}
	return s.exists(ctx, q, prefixed)
}

// FieldExists reports whether column exists on the prefixed table. A missing
// table has no fields.
func (s *SQLSchema) FieldExists(ctx context.Context, table, column string) (bool, error) {
	prefixed := s.PrefixTable(table)
	switch s.dialect {
	case SQLite:
		return s.sqliteFieldExists(ctx, prefixed, column)
	case MySQL:
		return s.exists(ctx,
			"SELECT 1 FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?",
			prefixed, column)
	case Postgres:
		return s.exists(ctx,
			"SELECT 1 FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?",
			prefixed, column)
	default:
		return false, fmt.Errorf("field exists: %w: %q", ErrUnknownDialect, s.dialect)
	}
}

func (s *SQLSchema) sqliteFieldExists(ctx context.Context, prefixed, column string) (bool, error) {
	if err := CheckIdentifier(prefixed); err != nil {
		return false, err
	}
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+prefixed+")")
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", prefixed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan table info %s: %w", prefixed, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// IndexExists reports whether the logical index name exists on the table.
func (s *SQLSchema) IndexExists(ctx context.Context, table, name string) (bool, error) {
	prefixed := s.PrefixTable(table)
	physical := s.dialect.IndexName(prefixed, name)
	switch s.dialect {
	case SQLite:
		return s.exists(ctx, "SELECT 1 FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?", prefixed, physical)
	case MySQL:
		return s.exists(ctx,
			"SELECT 1 FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?",
			prefixed, physical)
	case Postgres:
		return s.exists(ctx,
			"SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND tablename = ? AND indexname = ?",
			prefixed, physical)
	default:
		return false, fmt.Errorf("index exists: %w: %q", ErrUnknownDialect, s.dialect)
	}
}

// TriggerExists reports whether the named trigger exists on the table.
func (s *SQLSchema) TriggerExists(ctx context.Context, table, name string) (bool, error) {
	q, args, err := triggerSQL(s.dialect, s.PrefixTable(table), name)
	if err != nil {
		return false, err
	}
	return s.exists(ctx, q, args...)
}

// TriggerDefinition returns the stored text of the named trigger.
func (s *SQLSchema) TriggerDefinition(ctx context.Context, table, name string) (string, bool, error) {
	q, args, err := triggerSQL(s.dialect, s.PrefixTable(table), name)
	if err != nil {
		return "", false, err
	}
	var def sql.NullString
	err = s.db.QueryRowContext(ctx, Rebind(s.dialect, q), args...).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("trigger definition %s: %w", name, err)
	}
	return def.String, true, nil
}

// CreateTable creates the table unless it exists.
func (s *SQLSchema) CreateTable(ctx context.Context, table string, spec TableSpec) error {
	q, err := createTableSQL(s.dialect, s.PrefixTable(table), spec)
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// AddField adds a column. Returns ErrTableNotFound for a missing table.
func (s *SQLSchema) AddField(ctx context.Context, table, column string, spec ColumnSpec) error {
	ok, err := s.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("add field %s.%s: %w", table, column, err)
	}
	if !ok {
		return fmt.Errorf("add field %s.%s: %w", table, column, ErrTableNotFound)
	}
	q, err := addFieldSQL(s.dialect, s.PrefixTable(table), column, spec)
	if err != nil {
		return fmt.Errorf("add field %s.%s: %w", table, column, err)
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("add field %s.%s: %w", table, column, err)
	}
	return nil
}

// AddIndex creates an index over fields.
func (s *SQLSchema) AddIndex(ctx context.Context, table, name string, fields []string) error {
	q, err := addIndexSQL(s.dialect, s.PrefixTable(table), name, fields)
	if err != nil {
		return fmt.Errorf("add index %s on %s: %w", name, table, err)
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("add index %s on %s: %w", name, table, err)
	}
	return nil
}

// Exec runs a raw statement.
func (s *SQLSchema) Exec(ctx context.Context, query string, opts ExecOptions) error {
	if err := CheckDelimiter(query, opts); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (s *SQLSchema) exists(ctx context.Context, q string, args ...any) (bool, error) {
	rows, err := s.db.QueryContext(ctx, Rebind(s.dialect, q), args...)
	if err != nil {
		return false, fmt.Errorf("query schema: %w", err)
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

// Rebind rewrites "?" markers to the dialect's placeholder style. Queries
// passed here never contain "?" inside string literals.
func Rebind(d Dialect, q string) string {
	if d != Postgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
