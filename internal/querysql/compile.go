// Package querysql compiles queryir queries to parameterized SQL.
package querysql

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/queryir"
	"github.com/roach88/polyref/internal/schema"
)

// SQLCompiler compiles queryir queries for one SQL dialect.
//
// Every query has an ORDER BY with a deterministic key. Values are always
// parameters, never interpolated. Identifiers are checked against
// schema.CheckIdentifier because they are spliced into the statement.
type SQLCompiler struct {
	dialect schema.Dialect
}

// NewSQLCompiler creates a compiler for the dialect.
func NewSQLCompiler(d schema.Dialect) *SQLCompiler {
	return &SQLCompiler{dialect: d}
}

// Compile converts a query to SQL and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	var (
		sql    string
		params []any
		err    error
	)
	switch query := q.(type) {
	case queryir.Select:
		sql, params, err = c.compileSelect(query, nil)
	case *queryir.Select:
		sql, params, err = c.compileSelect(*query, nil)
	case queryir.Join:
		sql, params, err = c.compileJoin(query)
	case *queryir.Join:
		sql, params, err = c.compileJoin(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	if err != nil {
		return "", nil, err
	}
	return schema.Rebind(c.dialect, sql), params, nil
}

// joinStep is one flattened JOIN clause.
type joinStep struct {
	kind  queryir.JoinKind
	right queryir.Select
	on    queryir.Predicate
}

// compileJoin flattens a left-deep join tree into
//
//	SELECT ... FROM a KIND JOIN b ON ... WHERE ... ORDER BY ...
//
// ON parameters precede WHERE parameters, matching placeholder order.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	var steps []joinStep
	var root queryir.Query = j
	for {
		switch node := root.(type) {
		case queryir.Join:
			steps = append(steps, joinStep{kind: node.Kind, right: node.Right, on: node.On})
			root = node.Left
			continue
		case *queryir.Join:
			steps = append(steps, joinStep{kind: node.Kind, right: node.Right, on: node.On})
			root = node.Left
			continue
		}
		break
	}
	// Collected right to left.
	for i, k := 0, len(steps)-1; i < k; i, k = i+1, k-1 {
		steps[i], steps[k] = steps[k], steps[i]
	}

	var base queryir.Select
	switch node := root.(type) {
	case queryir.Select:
		base = node
	case *queryir.Select:
		base = *node
	default:
		return "", nil, fmt.Errorf("unsupported join operand: %T", root)
	}
	return c.compileSelect(base, steps)
}

// compileSelect compiles base plus any joined tables.
func (c *SQLCompiler) compileSelect(base queryir.Select, steps []joinStep) (string, []any, error) {
	selects := []queryir.Select{base}
	for _, step := range steps {
		selects = append(selects, step.right)
	}

	columns, err := c.compileBindings(selects)
	if err != nil {
		return "", nil, err
	}

	from, err := c.tableRef(base)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var params []any
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(from)

	for _, step := range steps {
		if step.on == nil {
			return "", nil, fmt.Errorf("join of %s without ON condition", step.right.Name())
		}
		ref, err := c.tableRef(step.right)
		if err != nil {
			return "", nil, err
		}
		onSQL, onParams, err := c.compilePredicate(step.on)
		if err != nil {
			return "", nil, fmt.Errorf("compile join condition: %w", err)
		}
		fmt.Fprintf(&sb, " %s %s ON %s", step.kind, ref, onSQL)
		params = append(params, onParams...)
	}

	var filters []string
	for _, sel := range selects {
		if sel.Filter == nil {
			continue
		}
		filterSQL, filterParams, err := c.compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		filters = append(filters, filterSQL)
		params = append(params, filterParams...)
	}
	if len(filters) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(filters, " AND "))
	}

	order, err := c.orderBy(base)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)

	return sb.String(), params, nil
}

func (c *SQLCompiler) tableRef(sel queryir.Select) (string, error) {
	if err := schema.CheckIdentifier(sel.From); err != nil {
		return "", err
	}
	if sel.Alias == "" || sel.Alias == sel.From {
		return sel.From, nil
	}
	if err := schema.CheckIdentifier(sel.Alias); err != nil {
		return "", err
	}
	return sel.From + " " + sel.Alias, nil
}

// compileBindings builds the column list. Columns are sorted per table,
// tables keep join order.
// Example: {"s.id": "source_id"} → "s.id AS source_id"
func (c *SQLCompiler) compileBindings(selects []queryir.Select) (string, error) {
	var parts []string
	for _, sel := range selects {
		keys := make([]string, 0, len(sel.Bindings))
		for k := range sel.Bindings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, col := range keys {
			name := sel.Bindings[col]
			if err := schema.CheckIdentifier(col); err != nil {
				return "", err
			}
			if name == "" || name == col {
				parts = append(parts, col)
				continue
			}
			if err := schema.CheckIdentifier(name); err != nil {
				return "", err
			}
			parts = append(parts, col+" AS "+name)
		}
	}
	if len(parts) == 0 {
		return "*", nil
	}
	return strings.Join(parts, ", "), nil
}

// orderBy returns the ORDER BY list. SQLite gets COLLATE BINARY so text
// keys order the same across builds; other engines sort by their column
// collation.
func (c *SQLCompiler) orderBy(base queryir.Select) (string, error) {
	keys := base.OrderBy
	if len(keys) == 0 {
		keys = []string{c.qualify(base, base.KeyColumn())}
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := schema.CheckIdentifier(key); err != nil {
			return "", err
		}
		part := key + " ASC"
		if c.dialect == schema.SQLite {
			part += " COLLATE BINARY"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", "), nil
}

func (c *SQLCompiler) qualify(sel queryir.Select, col string) string {
	return sel.Name() + "." + col
}

// compilePredicate compiles a predicate to a SQL fragment with ?
// placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.FieldEquals:
		return c.compileFieldEquals(pred)
	case *queryir.FieldEquals:
		return c.compileFieldEquals(*pred)
	case queryir.In:
		return c.compileIn(pred)
	case *queryir.In:
		return c.compileIn(*pred)
	case queryir.IsNull:
		return c.compileIsNull(pred)
	case *queryir.IsNull:
		return c.compileIsNull(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	if err := schema.CheckIdentifier(eq.Field); err != nil {
		return "", nil, err
	}
	param, err := toParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value for %s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func (c *SQLCompiler) compileFieldEquals(eq queryir.FieldEquals) (string, []any, error) {
	if err := schema.CheckIdentifier(eq.Left); err != nil {
		return "", nil, err
	}
	if err := schema.CheckIdentifier(eq.Right); err != nil {
		return "", nil, err
	}
	return eq.Left + " = " + eq.Right, nil, nil
}

func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	if err := schema.CheckIdentifier(in.Field); err != nil {
		return "", nil, err
	}
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	marks := make([]string, len(in.Values))
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := toParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value for %s: %w", in.Field, err)
		}
		marks[i] = "?"
		params[i] = param
	}
	return in.Field + " IN (" + strings.Join(marks, ", ") + ")", params, nil
}

func (c *SQLCompiler) compileIsNull(n queryir.IsNull) (string, []any, error) {
	if err := schema.CheckIdentifier(n.Field); err != nil {
		return "", nil, err
	}
	if n.Not {
		return n.Field + " IS NOT NULL", nil, nil
	}
	return n.Field + " IS NULL", nil, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	if len(sqlParts) == 1 {
		return sqlParts[0], allParams, nil
	}
	return "(" + strings.Join(sqlParts, " AND ") + ")", allParams, nil
}

// toParam converts a predicate value to a database/sql argument.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil value - use IsNull")
	case string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, float64:
		return val, nil
	case uint:
		return toParam(uint64(val))
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return int64(val), nil
	case model.TargetID:
		if val.IsNull() {
			return nil, fmt.Errorf("null target id - use IsNull")
		}
		return val.String(), nil
	case *model.TargetID:
		if val == nil {
			return nil, fmt.Errorf("nil value - use IsNull")
		}
		return toParam(*val)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}
