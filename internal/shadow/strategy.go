package shadow

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/polyref/internal/schema"
)

var tracer = otel.Tracer("shadow")

// ColumnSpec is the shadow column definition.
var ColumnSpec = schema.ColumnSpec{Type: schema.TypeInt}

// backfillSentinel is written to a new shadow column to make the update
// trigger recompute every existing row.
const backfillSentinel = "0"

// Strategy adds shadow columns, their indexes and triggers to tables.
type Strategy struct {
	schema  schema.Schema
	dialect Dialect
}

// NewStrategy returns a Strategy issuing DDL through s.
func NewStrategy(s schema.Schema) (*Strategy, error) {
	d, err := DialectFor(s.Dialect())
	if err != nil {
		return nil, err
	}
	return &Strategy{schema: s, dialect: d}, nil
}

// Ensure makes every pair's shadow column exist on table and be maintained
// by triggers, and returns the shadow columns it created.
//
// When any string column is missing from table (or the table itself is
// missing) Ensure does nothing and returns no columns; the caller retries on
// a later schema event.
//
// Each DDL statement is preceded by an existence check, and duplicate-object
// errors from a concurrent migration count as success. Triggers are
// reinstalled, covering all pairs, whenever a column was added here or by a
// concurrent migration, or when a trigger is missing or does not maintain
// every pair. Existing rows are then recomputed with one bulk UPDATE.
func (s *Strategy) Ensure(ctx context.Context, table string, pairs []ColumnPair) (created []string, err error) {
	ctx, span := tracer.Start(ctx, "Strategy.Ensure")
	defer span.End()
	span.SetAttributes(attribute.String("table", table))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	if len(pairs) == 0 {
		return nil, nil
	}

	for _, p := range pairs {
		ok, err := s.schema.FieldExists(ctx, table, p.Column)
		if err != nil {
			return nil, fmt.Errorf("ensure shadow columns on %s: %w", table, err)
		}
		if !ok {
			slog.Debug("shadow columns deferred, column missing", "table", table, "column", p.Column)
			return nil, nil
		}
	}

	raced := false
	for _, p := range pairs {
		shadow := p.Shadow()
		added, lost, err := s.addColumn(ctx, table, shadow)
		if err != nil {
			return nil, err
		}
		if added {
			created = append(created, shadow)
		}
		raced = raced || lost
		if err := s.addIndex(ctx, table, p); err != nil {
			return nil, err
		}
	}

	install := len(created) > 0 || raced
	if !install {
		stale, err := s.staleTriggers(ctx, table, pairs)
		if err != nil {
			return nil, err
		}
		install = stale
	}
	if !install {
		return nil, nil
	}

	if err := s.installTriggers(ctx, table, pairs); err != nil {
		return nil, err
	}

	backfill := pairs[0].Shadow()
	if len(created) > 0 {
		backfill = created[0]
	}
	q := fmt.Sprintf("UPDATE %s SET %s = %s", s.schema.PrefixTable(table), backfill, backfillSentinel)
	if err := s.schema.Exec(ctx, q, schema.ExecOptions{}); err != nil {
		return nil, fmt.Errorf("backfill %s.%s: %w", table, backfill, err)
	}

	if len(created) > 0 {
		slog.Info("shadow columns created", "table", table, "columns", created)
	} else {
		slog.Info("shadow triggers repaired", "table", table)
	}
	return created, nil
}

// addColumn adds the shadow column unless it exists. lost reports that a
// concurrent migration added it between the check and the DDL.
func (s *Strategy) addColumn(ctx context.Context, table, shadow string) (added, lost bool, err error) {
	ok, err := s.schema.FieldExists(ctx, table, shadow)
	if err != nil {
		return false, false, fmt.Errorf("check %s.%s: %w", table, shadow, err)
	}
	if ok {
		return false, false, nil
	}
	if err := s.schema.AddField(ctx, table, shadow, ColumnSpec); err != nil {
		if schema.IsDuplicateObject(err) {
			slog.Debug("shadow column added concurrently", "table", table, "column", shadow)
			return false, true, nil
		}
		return false, false, err
	}
	return true, false, nil
}

// addIndex adds the (shadow, type) index unless it exists.
func (s *Strategy) addIndex(ctx context.Context, table string, p ColumnPair) error {
	shadow := p.Shadow()
	ok, err := s.schema.IndexExists(ctx, table, shadow)
	if err != nil {
		return fmt.Errorf("check index %s on %s: %w", shadow, table, err)
	}
	if ok {
		return nil
	}
	if err := s.schema.AddIndex(ctx, table, shadow, []string{shadow, p.TypeColumn}); err != nil {
		if schema.IsDuplicateObject(err) {
			return nil
		}
		return err
	}
	return nil
}

// staleTriggers reports whether a trigger is missing or leaves one of the
// shadow columns unmaintained. A run killed between adding a column and
// reinstalling the table's triggers leaves the latter.
func (s *Strategy) staleTriggers(ctx context.Context, table string, pairs []ColumnPair) (bool, error) {
	prefixed := s.schema.PrefixTable(table)
	for _, name := range s.dialect.TriggerNames(prefixed, pairs) {
		def, ok, err := s.schema.TriggerDefinition(ctx, table, name)
		if err != nil {
			return false, fmt.Errorf("check trigger %s: %w", name, err)
		}
		if !ok {
			return true, nil
		}
		if !s.dialect.Covers(prefixed, def, pairs) {
			slog.Debug("shadow trigger incomplete", "table", table, "trigger", name)
			return true, nil
		}
	}
	return false, nil
}

func (s *Strategy) installTriggers(ctx context.Context, table string, pairs []ColumnPair) error {
	stmts, err := s.dialect.Statements(s.schema.PrefixTable(table), pairs)
	if err != nil {
		return fmt.Errorf("triggers for %s: %w", table, err)
	}
	for _, st := range stmts {
		if err := s.schema.Exec(ctx, st.SQL, schema.ExecOptions{AllowDelimiter: st.AllowDelimiter}); err != nil {
			if schema.IsDuplicateObject(err) {
				continue
			}
			return fmt.Errorf("install triggers on %s: %w", table, err)
		}
	}
	return nil
}
