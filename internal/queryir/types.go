package queryir

// Query is a relational query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate is a boolean condition over columns.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select reads one table.
//
//	SELECT <bindings> FROM <from> <alias> WHERE <filter> ORDER BY <order>
//
// Example:
//
//	Select{
//	  From:     "node__field_ref",
//	  Alias:    "f",
//	  Filter:   Equals{Field: "f.deleted", Value: 0},
//	  Bindings: map[string]string{"f.entity_id": "source_id"},
//	}
type Select struct {
	From  string // physical table name
	Alias string // defaults to From

	Filter   Predicate         // WHERE conditions (nil = no filter)
	Bindings map[string]string // alias.column → output name

	// OrderBy lists "alias.column" keys. When empty the query is ordered by
	// Key, which defaults to "id".
	OrderBy []string
	Key     string
}

func (Select) queryNode() {}

// Name returns the alias, falling back to the table name.
func (s Select) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.From
}

// KeyColumn returns the ordering key column.
func (s Select) KeyColumn() string {
	if s.Key != "" {
		return s.Key
	}
	return "id"
}

// JoinKind selects inner or left outer join semantics.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

// String returns the SQL keyword.
func (k JoinKind) String() string {
	if k == JoinLeft {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// Join combines Left, a Select or another Join, with the Right table.
//
//	<left> <kind> JOIN <right.from> <right.alias> ON <on>
//
// Joins nest to the left, so a chain a → b → c is
// Join{Left: Join{Left: a, Right: b}, Right: c}.
type Join struct {
	Left  Query
	Right Select
	On    Predicate
	Kind  JoinKind
}

func (Join) queryNode() {}

// Equals compares a column with a literal value, compiled as a parameter.
//
//	<field> = ?
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// FieldEquals compares two columns.
//
//	<left> = <right>
type FieldEquals struct {
	Left  string
	Right string
}

func (FieldEquals) predicateNode() {}

// IsNull tests a column for NULL, or for NOT NULL when Not is set.
type IsNull struct {
	Field string
	Not   bool
}

func (IsNull) predicateNode() {}

// In tests a column against a list of literal values.
//
//	<field> IN (?, ?, ...)
//
// An empty list matches nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Selects returns the tables of q from left to right.
func Selects(q Query) []Select {
	switch query := q.(type) {
	case Select:
		return []Select{query}
	case *Select:
		return []Select{*query}
	case Join:
		return append(Selects(query.Left), query.Right)
	case *Join:
		return append(Selects(query.Left), query.Right)
	default:
		return nil
	}
}
