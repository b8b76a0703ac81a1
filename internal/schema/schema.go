package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrDelimiterNotAllowed is returned by Exec for statements containing
	// ";" without ExecOptions.AllowDelimiter.
	ErrDelimiterNotAllowed = errors.New("statement delimiter not allowed in query")

	// ErrInvalidIdentifier is returned for table, column and index names
	// that would need quoting.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrTableNotFound is returned for DDL against a missing table.
	ErrTableNotFound = errors.New("table not found")

	// ErrUnknownDialect is returned by ParseDialect.
	ErrUnknownDialect = errors.New("unknown dialect")
)

// Dialect names a supported database engine family.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Dialects lists every supported dialect in a stable order.
var Dialects = []Dialect{MySQL, Postgres, SQLite}

// ParseDialect maps a driver or dialect name to a Dialect.
// Accepted: mysql, postgres, postgresql, pgx, sqlite, sqlite3.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// IndexName returns the physical name of a logical index on a prefixed
// table. MySQL scopes index names per table; Postgres and SQLite scope them
// per schema, so the table name is folded in.
func (d Dialect) IndexName(prefixedTable, name string) string {
	switch d {
	case Postgres:
		return prefixedTable + "__" + name + "__idx"
	case SQLite:
		return prefixedTable + "_" + name
	default:
		return name
	}
}

// ColumnType is a portable column type.
type ColumnType int

const (
	// TypeSerial is an auto-incrementing unsigned primary key.
	TypeSerial ColumnType = iota
	// TypeInt is a 64-bit integer; unsigned where the engine supports it.
	TypeInt
	// TypeVarchar is a bounded string of Length characters.
	TypeVarchar
	// TypeBool is stored as a small integer.
	TypeBool
)

// ColumnSpec describes a column to add or create.
type ColumnSpec struct {
	Type    ColumnType
	Length  int
	NotNull bool
	// Default is a literal SQL default, used verbatim when non-empty.
	Default string
}

// SQLType renders spec for dialect d.
func (d Dialect) SQLType(spec ColumnSpec) string {
	var typ string
	switch spec.Type {
	case TypeSerial:
		switch d {
		case MySQL:
			return "BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY"
		case Postgres:
			return "BIGSERIAL PRIMARY KEY"
		default:
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		}
	case TypeInt:
		switch d {
		case MySQL:
			typ = "BIGINT UNSIGNED"
		case Postgres:
			typ = "BIGINT"
		default:
			typ = "INTEGER"
		}
	case TypeVarchar:
		typ = fmt.Sprintf("VARCHAR(%d)", spec.Length)
	case TypeBool:
		typ = "SMALLINT"
	}
	if spec.NotNull {
		typ += " NOT NULL"
	} else {
		typ += " NULL"
	}
	if spec.Default != "" {
		typ += " DEFAULT " + spec.Default
	}
	return typ
}

// Column is a named column of a table definition.
type Column struct {
	Name string
	Spec ColumnSpec
}

// TableSpec describes a table to create.
type TableSpec struct {
	Columns []Column
	// PrimaryKey is a composite key; leave empty when a TypeSerial column is
	// present.
	PrimaryKey []string
}

// ExecOptions modifies how Exec treats a raw statement.
type ExecOptions struct {
	// AllowDelimiter permits ";" inside the statement, for trigger and
	// function bodies.
	AllowDelimiter bool
}

// Schema is the introspection and DDL contract.
type Schema interface {
	Dialect() Dialect

	// PrefixTable returns the physical name of an unprefixed table.
	PrefixTable(table string) string

	TableExists(ctx context.Context, table string) (bool, error)
	FieldExists(ctx context.Context, table, column string) (bool, error)
	IndexExists(ctx context.Context, table, name string) (bool, error)
	// TriggerExists takes the physical trigger name.
	TriggerExists(ctx context.Context, table, name string) (bool, error)
	// TriggerDefinition returns the engine's text of the trigger body. ok
	// is false when the trigger does not exist.
	TriggerDefinition(ctx context.Context, table, name string) (def string, ok bool, err error)

	CreateTable(ctx context.Context, table string, spec TableSpec) error
	AddField(ctx context.Context, table, column string, spec ColumnSpec) error
	// AddIndex creates the logical index name over fields.
	AddIndex(ctx context.Context, table, name string, fields []string) error

	// Exec runs a raw statement. Table names inside it must already be
	// prefixed.
	Exec(ctx context.Context, query string, opts ExecOptions) error
}

var identifierRE = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// CheckIdentifier returns ErrInvalidIdentifier unless every name is a plain
// identifier.
func CheckIdentifier(names ...string) error {
	for _, n := range names {
		if !identifierRE.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

// CheckDelimiter enforces the ExecOptions.AllowDelimiter contract.
func CheckDelimiter(query string, opts ExecOptions) error {
	if !opts.AllowDelimiter && strings.Contains(strings.TrimRight(strings.TrimSpace(query), ";"), ";") {
		return ErrDelimiterNotAllowed
	}
	return nil
}

// triggerSQL returns the query and arguments selecting a trigger's
// definition text.
func triggerSQL(d Dialect, prefixed, name string) (string, []any, error) {
	switch d {
	case SQLite:
		return "SELECT sql FROM sqlite_master WHERE type = 'trigger' AND tbl_name = ? AND name = ?", []any{prefixed, name}, nil
	case MySQL:
		return "SELECT action_statement FROM information_schema.triggers WHERE trigger_schema = DATABASE() AND event_object_table = ? AND trigger_name = ?", []any{prefixed, name}, nil
	case Postgres:
		return "SELECT pg_get_triggerdef(t.oid) FROM pg_trigger t JOIN pg_class c ON c.oid = t.tgrelid WHERE c.relname = ? AND t.tgname = ? AND NOT t.tgisinternal", []any{prefixed, name}, nil
	default:
		return "", nil, fmt.Errorf("trigger: %w: %q", ErrUnknownDialect, d)
	}
}

// createTableSQL renders a CREATE TABLE statement for a prefixed table.
func createTableSQL(d Dialect, prefixed string, spec TableSpec) (string, error) {
	if err := CheckIdentifier(prefixed); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(spec.Columns)+1)
	for _, c := range spec.Columns {
		if err := CheckIdentifier(c.Name); err != nil {
			return "", err
		}
		defs = append(defs, c.Name+" "+d.SQLType(c.Spec))
	}
	if len(spec.PrimaryKey) > 0 {
		if err := CheckIdentifier(spec.PrimaryKey...); err != nil {
			return "", err
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(spec.PrimaryKey, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", prefixed, strings.Join(defs, ", ")), nil
}

func addFieldSQL(d Dialect, prefixed, column string, spec ColumnSpec) (string, error) {
	if err := CheckIdentifier(prefixed, column); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", prefixed, column, d.SQLType(spec)), nil
}

func addIndexSQL(d Dialect, prefixed, name string, fields []string) (string, error) {
	if err := CheckIdentifier(prefixed, name); err != nil {
		return "", err
	}
	if err := CheckIdentifier(fields...); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.IndexName(prefixed, name), prefixed, strings.Join(fields, ", ")), nil
}
