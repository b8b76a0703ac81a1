// Package relation plans joins through reference fields.
//
// A reference column holds ids of many entity types as strings. A join
// to an integer-keyed target uses the shadow "_int" column so the database
// can compare integers through an index. A join to a string-keyed target
// uses the string column itself. Either way the join condition also
// requires the sibling type column to equal the target type: row 5 of
// "foo" and row 5 of "bar" share an id, and only the type column tells
// them apart. The type predicate lives in the ON clause, so a left join
// yields no match rather than a false one.
package relation

import (
	"errors"
	"fmt"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/queryir"
)

var (
	// ErrNotReference is returned when the field is not a reference field.
	ErrNotReference = errors.New("field is not a reference field")

	// ErrNotJoinable is returned when the target entity type has no SQL
	// tables to join.
	ErrNotJoinable = errors.New("entity type has no SQL storage")
)

// Table aliases used by planned queries.
const (
	AliasSource = "s"
	AliasField  = "f"
	AliasTarget = "t"
)

// Prefixer maps logical table names to physical ones. schema.Schema
// implements it.
type Prefixer interface {
	PrefixTable(table string) string
}

type noPrefix struct{}

func (noPrefix) PrefixTable(table string) string { return table }

// Condition is the join between a reference column pair and a target
// entity type's base table.
type Condition struct {
	SourceTable  string
	SourceColumn string // the string column, or its shadow for integer targets
	TypeColumn   string
	Shadow       bool

	TargetType  string
	TargetTable string
	TargetKey   string
}

// Predicate returns the ON condition with the source columns qualified by
// sourceAlias and the target key by targetAlias.
func (c Condition) Predicate(sourceAlias, targetAlias string) queryir.And {
	return queryir.And{Predicates: []queryir.Predicate{
		queryir.FieldEquals{
			Left:  sourceAlias + "." + c.SourceColumn,
			Right: targetAlias + "." + c.TargetKey,
		},
		queryir.Equals{Field: sourceAlias + "." + c.TypeColumn, Value: c.TargetType},
	}}
}

// Planner plans joins against a registry.
type Planner struct {
	registry entity.Registry
	prefix   Prefixer
}

// New creates a planner. A nil prefixer leaves table names unchanged.
func New(registry entity.Registry, prefix Prefixer) *Planner {
	if prefix == nil {
		prefix = noPrefix{}
	}
	return &Planner{registry: registry, prefix: prefix}
}

// PlanJoin returns the join condition from the reference columns of
// sourceTable to targetType's base table. sourceTable is a physical name.
func (p *Planner) PlanJoin(sourceTable string, columns mapping.Pair, targetType string) (Condition, error) {
	target, err := p.registry.EntityType(model.CanonicalTypeID(targetType))
	if err != nil {
		return Condition{}, fmt.Errorf("plan join to %s: %w", targetType, err)
	}
	if !target.SQLStorage {
		return Condition{}, fmt.Errorf("plan join to %s: %w", target.ID, ErrNotJoinable)
	}
	kind, err := p.registry.IdentifierKind(target.ID)
	if err != nil {
		return Condition{}, fmt.Errorf("plan join to %s: %w", target.ID, err)
	}

	c := Condition{
		SourceTable:  sourceTable,
		SourceColumn: columns.TargetID,
		TypeColumn:   columns.TargetType,
		TargetType:   target.ID,
		TargetTable:  p.prefix.PrefixTable(target.Base()),
		TargetKey:    model.KeyID,
	}
	if kind == model.KindInteger {
		c.SourceColumn = model.ShadowColumn(columns.TargetID)
		c.Shadow = true
	}
	return c, nil
}
