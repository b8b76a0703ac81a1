// Package migrate reconciles shadow columns with the reference fields an
// entity type declares.
//
// Reconcile is idempotent and safe to call from any schema event, in any
// order: when an entity type is created or updated, when a field storage is
// created, or on demand. Tables or columns that do not exist yet are
// skipped and picked up by a later call.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/schema"
	"github.com/roach88/polyref/internal/shadow"
)

var tracer = otel.Tracer("migrate")

// Skip records a field or table left for a later reconcile.
type Skip struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	Table      string `json:"table,omitempty" yaml:"table,omitempty"`
	Reason     string `json:"reason" yaml:"reason"`
}

// Result lists the shadow columns created per table and what was skipped.
type Result struct {
	Created map[string][]string `json:"created" yaml:"created"`
	Skipped []Skip              `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// CreatedCount returns the number of shadow columns created.
func (r Result) CreatedCount() int {
	n := 0
	for _, cols := range r.Created {
		n += len(cols)
	}
	return n
}

func (r *Result) merge(o Result) {
	if r.Created == nil {
		r.Created = map[string][]string{}
	}
	for table, cols := range o.Created {
		r.Created[table] = append(r.Created[table], cols...)
	}
	r.Skipped = append(r.Skipped, o.Skipped...)
}

// Migrator applies the shadow column strategy to the tables of reference
// fields.
type Migrator struct {
	registry entity.Registry
	strategy *shadow.Strategy
}

// New returns a Migrator issuing DDL through s.
func New(r entity.Registry, s schema.Schema) (*Migrator, error) {
	st, err := shadow.NewStrategy(s)
	if err != nil {
		return nil, fmt.Errorf("new migrator: %w", err)
	}
	return &Migrator{registry: r, strategy: st}, nil
}

// Reconcile ensures shadow columns for every reference field of the entity
// type. hint is a field storage being created that the registry may not
// list yet; it is added unless a field of that name is already known.
//
// Unmappable fields and failing tables are recorded in Result.Skipped and
// do not stop the others. The error is reserved for an unknown entity type.
func (m *Migrator) Reconcile(ctx context.Context, entityTypeID string, hint *model.FieldStorage) (Result, error) {
	ctx, span := tracer.Start(ctx, "Migrator.Reconcile",
		trace.WithAttributes(attribute.String("entity_type", entityTypeID)))
	defer span.End()

	res := Result{Created: map[string][]string{}}

	et, err := m.registry.EntityType(entityTypeID)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("reconcile %s: %w", entityTypeID, err)
	}
	if !et.SQLStorage {
		slog.Debug("entity type has no SQL storage", "entity_type", et.ID)
		return res, nil
	}

	fields, err := m.registry.FieldStorages(et.ID)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("reconcile %s: %w", entityTypeID, err)
	}
	if hint != nil && hint.IsReference() {
		if _, ok := fields[hint.Name]; !ok {
			h := *hint
			h.EntityTypeID = et.ID
			fields[h.Name] = h
		}
	}

	names := make([]string, 0, len(fields))
	for name, fs := range fields {
		if fs.IsReference() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var order []string
	pairs := map[string][]shadow.ColumnPair{}
	for _, name := range names {
		ft, err := mapping.Resolve(et, fields[name])
		if err != nil {
			slog.Debug("reference field skipped", "entity_type", et.ID, "field", name, "error", err)
			res.Skipped = append(res.Skipped, Skip{EntityType: et.ID, Field: name, Reason: err.Error()})
			continue
		}
		pair := shadow.ColumnPair{Column: ft.Columns.TargetID, TypeColumn: ft.Columns.TargetType}
		for _, table := range ft.Tables() {
			if _, ok := pairs[table]; !ok {
				order = append(order, table)
			}
			pairs[table] = append(pairs[table], pair)
		}
	}

	for _, table := range order {
		created, err := m.strategy.Ensure(ctx, table, pairs[table])
		if err != nil {
			span.RecordError(err)
			slog.Warn("shadow columns not created", "entity_type", et.ID, "table", table, "error", err)
			res.Skipped = append(res.Skipped, Skip{EntityType: et.ID, Table: table, Reason: err.Error()})
			continue
		}
		if len(created) > 0 {
			res.Created[table] = created
		}
	}

	span.SetAttributes(attribute.Int("created", res.CreatedCount()))
	return res, nil
}

// ReconcileAll reconciles every entity type that has reference fields.
func (m *Migrator) ReconcileAll(ctx context.Context) (Result, error) {
	seen := map[string]bool{}
	var types []string
	for _, fs := range m.registry.FieldStoragesByType(model.FieldTypeReference) {
		if !seen[fs.EntityTypeID] {
			seen[fs.EntityTypeID] = true
			types = append(types, fs.EntityTypeID)
		}
	}

	all := Result{Created: map[string][]string{}}
	for _, id := range types {
		res, err := m.Reconcile(ctx, id, nil)
		if err != nil {
			return all, err
		}
		all.merge(res)
	}
	return all, nil
}

// OnFieldStorageCreate reconciles the field's entity type with the new
// field included.
func (m *Migrator) OnFieldStorageCreate(ctx context.Context, fs model.FieldStorage) error {
	if !fs.IsReference() {
		return nil
	}
	res, err := m.Reconcile(ctx, fs.EntityTypeID, &fs)
	if err != nil {
		return err
	}
	logResult("field storage created", fs.Key(), res)
	return nil
}

// OnEntityTypeCreate reconciles a new or updated entity type.
func (m *Migrator) OnEntityTypeCreate(ctx context.Context, et model.EntityType) error {
	res, err := m.Reconcile(ctx, et.ID, nil)
	if err != nil {
		return err
	}
	logResult("entity type created", et.ID, res)
	return nil
}

func logResult(event, subject string, res Result) {
	if n := res.CreatedCount(); n > 0 {
		slog.Debug("reconciled shadow columns", "event", event, "subject", subject, "created", n)
	}
}
