package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/polyref/internal/queryir"
	"github.com/roach88/polyref/internal/store"
)

// assertAlias is the table alias of assertion queries.
const assertAlias = "a"

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Table    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Table)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the stored rows.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st *store.Store, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertColumnValues:
			err = assertColumnValues(ctx, st, assertion)
		case AssertFinalState:
			err = assertFinalState(ctx, st, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func qualified(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = assertAlias + "." + c
	}
	return out
}

// assertColumnValues compares one column of every row, in order.
func assertColumnValues(ctx context.Context, st *store.Store, a Assertion) error {
	order := a.OrderBy
	if len(order) == 0 {
		order = []string{"id"}
	}
	rows, err := st.Query(ctx, queryir.Select{
		From:     st.Schema().PrefixTable(a.Table),
		Alias:    assertAlias,
		Bindings: map[string]string{assertAlias + "." + a.Column: "value"},
		OrderBy:  qualified(order),
	})
	if err != nil {
		return fmt.Errorf("column_values %s.%s: %w", a.Table, a.Column, err)
	}

	actual := make([]any, len(rows))
	for i, row := range rows {
		actual[i] = row["value"]
	}
	if !sameValues(a.Values, actual) {
		return &AssertionError{
			Type:     AssertColumnValues,
			Table:    a.Table,
			Expected: fmt.Sprintf("%s = %s", a.Column, formatValues(a.Values)),
			Actual:   fmt.Sprintf("%s = %s", a.Column, formatValues(actual)),
		}
	}
	return nil
}

// assertFinalState checks the single row matching Where against Expect
// (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	whereKeys := sortedKeys(a.Where)
	filter := queryir.And{}
	for _, k := range whereKeys {
		col := assertAlias + "." + k
		if a.Where[k] == nil {
			filter.Predicates = append(filter.Predicates, queryir.IsNull{Field: col})
			continue
		}
		filter.Predicates = append(filter.Predicates, queryir.Equals{Field: col, Value: a.Where[k]})
	}
	expectKeys := sortedKeys(a.Expect)
	bindings := make(map[string]string, len(expectKeys))
	for _, k := range expectKeys {
		bindings[assertAlias+"."+k] = k
	}

	rows, err := st.Query(ctx, queryir.Select{
		From:     st.Schema().PrefixTable(a.Table),
		Alias:    assertAlias,
		Filter:   filter,
		Bindings: bindings,
		OrderBy:  qualified(expectKeys[:1]),
	})
	if err != nil {
		return fmt.Errorf("final_state %s: %w", a.Table, err)
	}

	whereDesc := formatWhereClause(a.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Table:    a.Table,
			Expected: "one row where " + whereDesc,
			Actual:   "no rows found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Table:    a.Table,
			Expected: "exactly one row where " + whereDesc,
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}

	for _, k := range expectKeys {
		if !sameValue(a.Expect[k], rows[0][k]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Table:    a.Table,
				Expected: fmt.Sprintf("%s = %s where %s", k, formatValue(a.Expect[k]), whereDesc),
				Actual:   fmt.Sprintf("%s = %s", k, formatValue(rows[0][k])),
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhereClause creates a human-readable description of the filter.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(where[k])))
	}
	return strings.Join(parts, " AND ")
}

// valueText is the comparable form of a value: SQL text for stored
// values, with booleans as 0 or 1.
func valueText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		if val {
			return "1", true
		}
		return "0", true
	default:
		return fmt.Sprint(val), true
	}
}

func sameValue(expected, actual any) bool {
	e, eok := valueText(expected)
	a, aok := valueText(actual)
	return eok == aok && e == a
}

func sameValues(expected, actual []any) bool {
	if len(expected) != len(actual) {
		return false
	}
	for i := range expected {
		if !sameValue(expected[i], actual[i]) {
			return false
		}
	}
	return true
}

func formatValue(v any) string {
	if s, ok := valueText(v); ok {
		return s
	}
	return "NULL"
}

func formatValues(vs []any) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
