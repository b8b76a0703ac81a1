// Package queryir is the query representation produced by the join
// planner and compiled to SQL by querysql.
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so backends can switch over
// them exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	case Join:
//	}
//
// Columns are referenced as "alias.column". Literal values in predicates
// are always compiled to bind parameters, never interpolated.
//
// The fragment is deliberately small:
//   - Select(from, alias, filter, bindings, order)
//   - Join(left, right, on) with inner or left outer kind
//   - Predicates: Equals, FieldEquals, In, IsNull, And
//
// Join conditions belong in Join.On. For left joins this decides whether
// an unmatched row yields NULL columns or is dropped, so filters that must
// not remove unmatched rows never go into a Select filter.
package queryir
