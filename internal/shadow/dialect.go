package shadow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/schema"
)

// maxTriggerName is the longest trigger name MySQL accepts.
const maxTriggerName = 64

// ColumnPair is a target id column and its sibling type column.
type ColumnPair struct {
	Column     string
	TypeColumn string
}

// Shadow returns the shadow column name.
func (p ColumnPair) Shadow() string {
	return model.ShadowColumn(p.Column)
}

// Statement is one DDL statement.
type Statement struct {
	SQL string
	// AllowDelimiter is set for statements with ";" inside a body.
	AllowDelimiter bool
}

// Dialect generates trigger DDL for one database engine.
type Dialect interface {
	Name() schema.Dialect

	// NumericExpr returns the expression computing the shadow value from
	// ref, a column reference such as NEW.c.
	NumericExpr(ref string) string

	// TriggerNames returns the physical trigger names covering pairs.
	TriggerNames(prefixedTable string, pairs []ColumnPair) []string

	// Covers reports whether def, the stored text of one of the triggers
	// named by TriggerNames, maintains the shadow columns it is
	// responsible for.
	Covers(prefixedTable, def string, pairs []ColumnPair) bool

	// Statements returns the DDL that (re)installs the triggers for pairs.
	// Every statement is safe to re-run.
	Statements(prefixedTable string, pairs []ColumnPair) ([]Statement, error)
}

// DialectFor returns the trigger dialect for d.
func DialectFor(d schema.Dialect) (Dialect, error) {
	switch d {
	case schema.MySQL:
		return MySQL{}, nil
	case schema.Postgres:
		return Postgres{}, nil
	case schema.SQLite:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("shadow triggers: %w: %q", schema.ErrUnknownDialect, d)
	}
}

// TriggerName returns "{prefixedTable}_der_{op}". Names longer than 64
// characters keep their first 56 characters followed by the first 8 hex
// digits of the SHA-256 of the full name.
func TriggerName(prefixedTable, op string) string {
	name := prefixedTable + "_der_" + strings.ToLower(op)
	if len(name) <= maxTriggerName {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	return name[:maxTriggerName-8] + hex.EncodeToString(sum[:])[:8]
}

var triggerOps = []string{"INSERT", "UPDATE"}

// assignsAll reports whether def assigns every pair's shadow column.
func assignsAll(def string, pairs []ColumnPair) bool {
	for _, p := range pairs {
		re := regexp.MustCompile(`(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(p.Shadow()) + `\s*=`)
		if !re.MatchString(def) {
			return false
		}
	}
	return true
}

func checkPairs(prefixedTable string, pairs []ColumnPair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no columns for %s", prefixedTable)
	}
	names := []string{prefixedTable}
	for _, p := range pairs {
		names = append(names, p.Column, p.TypeColumn)
	}
	return schema.CheckIdentifier(names...)
}

// MySQL installs BEFORE triggers assigning NEW.c_int.
type MySQL struct{}

func (MySQL) Name() schema.Dialect { return schema.MySQL }

func (MySQL) NumericExpr(ref string) string {
	return fmt.Sprintf("IF(%s REGEXP '^[0-9]+$', CAST(%s AS UNSIGNED), NULL)", ref, ref)
}

func (MySQL) TriggerNames(prefixedTable string, _ []ColumnPair) []string {
	return []string{TriggerName(prefixedTable, "insert"), TriggerName(prefixedTable, "update")}
}

// Covers requires def to assign every shadow column of the table.
func (MySQL) Covers(_, def string, pairs []ColumnPair) bool {
	return assignsAll(def, pairs)
}

func (d MySQL) Statements(prefixedTable string, pairs []ColumnPair) ([]Statement, error) {
	if err := checkPairs(prefixedTable, pairs); err != nil {
		return nil, err
	}
	sets := make([]string, len(pairs))
	for i, p := range pairs {
		sets[i] = fmt.Sprintf("NEW.%s = %s", p.Shadow(), d.NumericExpr("NEW."+p.Column))
	}
	body := strings.Join(sets, ", ")

	var out []Statement
	for _, op := range triggerOps {
		name := TriggerName(prefixedTable, op)
		out = append(out,
			Statement{SQL: "DROP TRIGGER IF EXISTS " + name},
			Statement{SQL: fmt.Sprintf("CREATE TRIGGER %s BEFORE %s ON %s FOR EACH ROW SET %s", name, op, prefixedTable, body)},
		)
	}
	return out, nil
}

// maxBigint is the largest value of a Postgres bigint.
const maxBigint = "9223372036854775807"

// Postgres installs one trigger function per shadow column.
type Postgres struct{}

func (Postgres) Name() schema.Dialect { return schema.Postgres }

// NumericExpr yields NULL for numeric ids beyond the bigint range, where a
// bare cast would abort the write.
func (Postgres) NumericExpr(ref string) string {
	digits := fmt.Sprintf("ltrim(%s, '0')", ref)
	return fmt.Sprintf("(CASE WHEN %s ~ '^[0-9]+$' AND length(%s) <= 19 AND lpad(%s, 19, '0') COLLATE \"C\" <= '%s' THEN %s ELSE NULL END)::bigint",
		ref, digits, digits, maxBigint, ref)
}

// TriggerNames returns the shadow column names; Postgres scopes trigger
// names per table.
func (Postgres) TriggerNames(_ string, pairs []ColumnPair) []string {
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.Shadow()
	}
	return names
}

// FunctionName returns the trigger function name for a shadow column.
func (Postgres) FunctionName(prefixedTable, shadow string) string {
	return prefixedTable + "_" + shadow
}

// Covers requires def to call the trigger function of one of pairs. Each
// Postgres trigger maintains a single column.
func (d Postgres) Covers(prefixedTable, def string, pairs []ColumnPair) bool {
	for _, p := range pairs {
		if strings.Contains(def, d.FunctionName(prefixedTable, p.Shadow())+"(") {
			return true
		}
	}
	return false
}

func (d Postgres) Statements(prefixedTable string, pairs []ColumnPair) ([]Statement, error) {
	if err := checkPairs(prefixedTable, pairs); err != nil {
		return nil, err
	}
	var out []Statement
	for _, p := range pairs {
		shadow := p.Shadow()
		fn := d.FunctionName(prefixedTable, shadow)
		out = append(out,
			Statement{
				SQL: fmt.Sprintf("CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$ BEGIN NEW.%s = %s; RETURN NEW; END; $$ LANGUAGE plpgsql",
					fn, shadow, d.NumericExpr("NEW."+p.Column)),
				AllowDelimiter: true,
			},
			Statement{SQL: fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", shadow, prefixedTable)},
			Statement{SQL: fmt.Sprintf("CREATE TRIGGER %s BEFORE INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE PROCEDURE %s()", shadow, prefixedTable, fn)},
		)
	}
	return out, nil
}

// SQLite installs AFTER triggers that update the affected row by ROWID.
// SQLite cannot assign NEW in a trigger, and recursive triggers are off by
// default, so the UPDATE does not fire the update trigger again.
type SQLite struct{}

func (SQLite) Name() schema.Dialect { return schema.SQLite }

func (SQLite) NumericExpr(ref string) string {
	return fmt.Sprintf("CASE WHEN %s GLOB '[0-9]*' AND %s NOT GLOB '*[^0-9]*' THEN CAST(%s AS INTEGER) ELSE NULL END", ref, ref, ref)
}

func (SQLite) TriggerNames(prefixedTable string, _ []ColumnPair) []string {
	return []string{TriggerName(prefixedTable, "insert"), TriggerName(prefixedTable, "update")}
}

// Covers requires def to assign every shadow column of the table.
func (SQLite) Covers(_, def string, pairs []ColumnPair) bool {
	return assignsAll(def, pairs)
}

func (d SQLite) Statements(prefixedTable string, pairs []ColumnPair) ([]Statement, error) {
	if err := checkPairs(prefixedTable, pairs); err != nil {
		return nil, err
	}
	// The trigger body may only name tables of the trigger's own schema.
	table := prefixedTable[strings.LastIndex(prefixedTable, ".")+1:]

	sets := make([]string, len(pairs))
	for i, p := range pairs {
		sets[i] = fmt.Sprintf("%s = %s", p.Shadow(), d.NumericExpr("NEW."+p.Column))
	}
	body := strings.Join(sets, ", ")

	var out []Statement
	for _, op := range triggerOps {
		name := TriggerName(prefixedTable, op)
		out = append(out,
			Statement{SQL: "DROP TRIGGER IF EXISTS " + name},
			Statement{
				SQL:            fmt.Sprintf("CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW BEGIN UPDATE %s SET %s WHERE ROWID = NEW.ROWID; END", name, op, prefixedTable, table, body),
				AllowDelimiter: true,
			},
		)
	}
	return out, nil
}

// Script renders statements as a DDL script, one statement per line.
func Script(stmts []Statement) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s.SQL)
		b.WriteString(";\n")
	}
	return b.String()
}
