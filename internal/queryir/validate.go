package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems of a query.
type ValidationResult struct {
	// Valid is false when the query cannot be compiled meaningfully.
	Valid bool

	// Errors make a query invalid.
	Errors []string

	// Warnings flag legal but suspicious constructs.
	Warnings []string
}

// Validate checks q:
//  1. Every table has a name, and aliases are unique.
//  2. Joins have an ON condition (no cross joins).
//  3. Qualified columns refer to an alias in scope.
//  4. Equals is not used with nil; IsNull is.
//
// A query without bindings selects every column and gets a warning.
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{aliases: map[string]bool{}}
	v.validateQuery(q)
	if !v.bound {
		v.addWarning("no bindings - query selects every column")
	}
	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	errors   []string
	warnings []string
	aliases  map[string]bool
	bound    bool
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addError("select without table")
		return
	}
	name := sel.Name()
	if v.aliases[name] {
		v.addError("duplicate alias %q", name)
	}
	v.aliases[name] = true

	if len(sel.Bindings) > 0 {
		v.bound = true
	}
	for col := range sel.Bindings {
		v.checkColumn(col)
	}
	for _, col := range sel.OrderBy {
		v.checkColumn(col)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validateJoin(j Join) {
	v.validateQuery(j.Left)
	v.validateSelect(j.Right)
	if j.On == nil {
		v.addError("join of %q without ON condition", j.Right.Name())
		return
	}
	v.validatePredicate(j.On)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case FieldEquals:
		v.checkColumn(pred.Left)
		v.checkColumn(pred.Right)
	case *FieldEquals:
		v.checkColumn(pred.Left)
		v.checkColumn(pred.Right)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case IsNull:
		v.checkColumn(pred.Field)
	case *IsNull:
		v.checkColumn(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.checkColumn(eq.Field)
	if eq.Value == nil {
		v.addError("column %q compared to nil - use IsNull", eq.Field)
	}
}

func (v *validator) validateIn(in In) {
	v.checkColumn(in.Field)
	if len(in.Values) == 0 {
		v.addWarning("column %q tested against an empty list", in.Field)
	}
	for _, val := range in.Values {
		if val == nil {
			v.addError("column %q list contains nil", in.Field)
			return
		}
	}
}

// checkColumn verifies the qualifier of "alias.column" is in scope.
// Unqualified columns are accepted.
func (v *validator) checkColumn(col string) {
	if col == "" {
		v.addError("empty column reference")
		return
	}
	i := strings.LastIndex(col, ".")
	if i < 0 {
		return
	}
	if !v.aliases[col[:i]] {
		v.addError("column %q refers to unknown alias %q", col, col[:i])
	}
}
