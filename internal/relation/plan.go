package relation

import (
	"fmt"

	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/queryir"
)

// Direction is the traversal direction of a plan.
type Direction int

const (
	// Forward starts at the referencing entity and resolves its targets.
	Forward Direction = iota
	// Reverse starts at the target and finds the entities referencing it.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Table is a physical table and its alias.
type Table struct {
	Name  string
	Alias string
}

// JoinPlan is a planned traversal of one reference field.
type JoinPlan struct {
	Direction  Direction
	SourceType string
	Field      string
	TargetType string
	Kind       queryir.JoinKind

	// Source is the table of the referencing entity that carries its id:
	// the shared table, or the base table when the field is dedicated.
	Source Table
	// FieldTable is set for dedicated fields.
	FieldTable *Table
	Target     Table

	Condition Condition
}

// Forward plans source.field → target. Every source row is kept when kind
// is JoinLeft; rows referencing other types get NULL target columns.
func (p *Planner) Forward(sourceType, field, targetType string, kind queryir.JoinKind) (JoinPlan, error) {
	return p.plan(Forward, sourceType, field, targetType, kind)
}

// Reverse plans target ← source.field: the entities of sourceType whose
// field references targetType rows.
func (p *Planner) Reverse(targetType, sourceType, field string, kind queryir.JoinKind) (JoinPlan, error) {
	return p.plan(Reverse, sourceType, field, targetType, kind)
}

func (p *Planner) plan(dir Direction, sourceType, field, targetType string, kind queryir.JoinKind) (JoinPlan, error) {
	et, err := p.registry.EntityType(model.CanonicalTypeID(sourceType))
	if err != nil {
		return JoinPlan{}, fmt.Errorf("plan %s join: %w", dir, err)
	}
	fields, err := p.registry.FieldStorages(et.ID)
	if err != nil {
		return JoinPlan{}, fmt.Errorf("plan %s join: %w", dir, err)
	}
	fs, ok := fields[field]
	if !ok {
		return JoinPlan{}, fmt.Errorf("plan %s join: %s.%s: %w", dir, et.ID, field, mapping.ErrUnmappedField)
	}
	if !fs.IsReference() {
		return JoinPlan{}, fmt.Errorf("plan %s join: %s: %w", dir, fs.Key(), ErrNotReference)
	}
	ft, err := mapping.Resolve(et, fs)
	if err != nil {
		return JoinPlan{}, fmt.Errorf("plan %s join: %w", dir, err)
	}

	plan := JoinPlan{
		Direction:  dir,
		SourceType: et.ID,
		Field:      fs.Name,
		Kind:       kind,
	}
	valueTable := p.prefix.PrefixTable(ft.Table)
	if ft.Dedicated {
		plan.Source = Table{Name: p.prefix.PrefixTable(et.Base()), Alias: AliasSource}
		plan.FieldTable = &Table{Name: valueTable, Alias: AliasField}
	} else {
		plan.Source = Table{Name: valueTable, Alias: AliasSource}
	}

	cond, err := p.PlanJoin(valueTable, ft.Columns, targetType)
	if err != nil {
		return JoinPlan{}, err
	}
	plan.Condition = cond
	plan.TargetType = cond.TargetType
	plan.Target = Table{Name: cond.TargetTable, Alias: AliasTarget}
	return plan, nil
}

// valueAlias is the alias of the table holding the reference columns.
func (p JoinPlan) valueAlias() string {
	if p.FieldTable != nil {
		return p.FieldTable.Alias
	}
	return p.Source.Alias
}

// Query returns the plan as a join selecting source_id, target_id and,
// for dedicated fields, delta.
func (p JoinPlan) Query() queryir.Join {
	source := queryir.Select{
		From:     p.Source.Name,
		Alias:    p.Source.Alias,
		Bindings: map[string]string{p.Source.Alias + "." + model.KeyID: "source_id"},
	}
	target := queryir.Select{
		From:     p.Target.Name,
		Alias:    p.Target.Alias,
		Bindings: map[string]string{p.Target.Alias + "." + p.Condition.TargetKey: "target_id"},
	}
	on := p.Condition.Predicate(p.valueAlias(), p.Target.Alias)

	if p.FieldTable == nil {
		if p.Direction == Reverse {
			return queryir.Join{Left: target, Right: source, On: on, Kind: p.Kind}
		}
		return queryir.Join{Left: source, Right: target, On: on, Kind: p.Kind}
	}

	f := p.FieldTable.Alias
	values := queryir.Select{
		From:     p.FieldTable.Name,
		Alias:    f,
		Bindings: map[string]string{f + "." + mapping.ColDelta: "delta"},
	}
	live := queryir.Equals{Field: f + "." + mapping.ColDeleted, Value: 0}
	owner := queryir.FieldEquals{Left: p.Source.Alias + "." + model.KeyID, Right: f + "." + mapping.ColEntityID}

	if p.Direction == Reverse {
		onValues := queryir.And{Predicates: append(on.Predicates, live)}
		return queryir.Join{
			Left:  queryir.Join{Left: target, Right: values, On: onValues, Kind: p.Kind},
			Right: source,
			On:    owner,
			Kind:  p.Kind,
		}
	}
	return queryir.Join{
		Left: queryir.Join{
			Left:  source,
			Right: values,
			On:    queryir.And{Predicates: []queryir.Predicate{owner, live}},
			Kind:  p.Kind,
		},
		Right: target,
		On:    on,
		Kind:  p.Kind,
	}
}
