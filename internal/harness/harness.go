package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/migrate"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/queryir"
	"github.com/roach88/polyref/internal/ref"
	"github.com/roach88/polyref/internal/relation"
	"github.com/roach88/polyref/internal/store"
	"github.com/roach88/polyref/internal/testutil"
	"github.com/roach88/polyref/internal/validate"
)

// Harness executes the steps of one scenario.
type Harness struct {
	store     *store.Store
	migrator  *migrate.Migrator
	planner   *relation.Planner
	validator *validate.Validator
	logger    *slog.Logger
	seq       int64
}

// FieldViolation is a validation problem of one field in a validate
// step's output.
type FieldViolation struct {
	Field      string `json:"field"`
	Code       string `json:"code"`
	Delta      int    `json:"delta"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database:
// 1. Install the fixture registry with a shadow migrator listening
// 2. Save fixture and scenario entities
// 3. Execute steps, checking expect clauses
// 4. Evaluate assertions against the stored rows
//
// The returned error reports setup failures; expectation and assertion
// failures are collected in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	m, err := migrate.New(st.Registry(), st.Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	st.AddListener(m)

	h := &Harness{
		store:     st,
		migrator:  m,
		planner:   relation.New(st.Registry(), st.Schema()),
		validator: validate.New(st.Registry()),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, scenario *Scenario) error {
	fixture, err := testutil.OpenFixture(scenario.Fixture)
	if err != nil {
		return err
	}
	fixture.Entities = append(fixture.Entities, scenario.Entities...)
	saved, err := fixture.Seed(ctx, h.store)
	if err != nil {
		return err
	}
	h.logger.Info("fixture seeded", "fixture", scenario.Fixture, "entities", len(saved))
	return nil
}

// execute runs one step, records it and checks its expect clause.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Op: step.Op(), Outcome: OutcomeOK}

	var (
		output any
		err    error
	)
	switch ev.Op {
	case "save":
		ev.Subject = step.Save.EntityType
		output, err = h.save(ctx, step.Save)
	case "update":
		ev.Subject = step.Update.EntityType + ":" + step.Update.Identifier.String()
		output, err = h.update(ctx, step.Update)
	case "delete":
		ev.Subject = step.Delete.EntityType + ":" + step.Delete.ID.String()
		err = h.store.Delete(ctx, step.Delete.EntityType, step.Delete.ID)
	case "join":
		ev.Subject = joinSubject(step.Join)
		output, err = h.join(ctx, step.Join)
	case "validate":
		ev.Subject = step.Validate.EntityType + ":" + step.Validate.ID.String()
		output, err = h.validate(ctx, step.Validate)
	case "migrate":
		ev.Subject = step.Migrate.EntityType
		if ev.Subject == "" {
			ev.Subject = "all"
		}
		output, err = h.migrate(ctx, step.Migrate)
	default:
		err = fmt.Errorf("no operation")
	}

	if err != nil {
		ev.Outcome = OutcomeError
		ev.Error = err.Error()
	} else {
		ev.Output = output
	}
	result.AddEvent(ev)

	for _, msg := range checkExpect(step.Expect, ev) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", index, ev.Op, ev.Subject, msg))
	}

	h.logger.Info("step completed",
		"step", index,
		"op", ev.Op,
		"subject", ev.Subject,
		"outcome", ev.Outcome,
	)
}

func (h *Harness) save(ctx context.Context, r *entity.Record) (any, error) {
	rec := r.Clone()
	rec.EntityType = model.CanonicalTypeID(rec.EntityType)
	rec.EnforceNew = !rec.Identifier.IsZero()
	if err := h.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return map[string]any{"id": rec.ID().String()}, nil
}

func (h *Harness) update(ctx context.Context, r *entity.Record) (any, error) {
	loaded, err := h.store.Load(ctx, r.EntityType, r.Identifier)
	if err != nil {
		return nil, err
	}
	rec, ok := loaded.(*entity.Record)
	if !ok {
		return nil, fmt.Errorf("update %T: %w", loaded, entity.ErrUnsupportedEntity)
	}
	if r.Title != "" {
		rec.Title = r.Title
	}
	for field, refs := range r.Refs {
		rec.SetRefs(field, refs)
	}
	if err := h.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return map[string]any{"id": rec.ID().String()}, nil
}

func joinSubject(j *JoinStep) string {
	if j.Reverse {
		return j.To + " from " + j.From + "." + j.Field
	}
	return j.From + "." + j.Field + " to " + j.To
}

func (h *Harness) join(ctx context.Context, j *JoinStep) (any, error) {
	kind := queryir.JoinLeft
	if j.Inner {
		kind = queryir.JoinInner
	}
	var (
		plan relation.JoinPlan
		err  error
	)
	if j.Reverse {
		plan, err = h.planner.Reverse(j.To, j.From, j.Field, kind)
	} else {
		plan, err = h.planner.Forward(j.From, j.Field, j.To, kind)
	}
	if err != nil {
		return nil, err
	}
	rows, err := h.store.Query(ctx, plan.Query())
	if err != nil {
		return nil, err
	}
	sortRows(rows)
	return rows, nil
}

// sortRows orders join rows by source, delta and target. Rows of one
// source come back in table order otherwise.
func sortRows(rows []map[string]any) {
	key := func(row map[string]any, col string) string {
		if v, ok := row[col]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for _, col := range []string{"source_id", "delta", "target_id"} {
			ka, kb := key(rows[a], col), key(rows[b], col)
			if len(ka) != len(kb) {
				return len(ka) < len(kb)
			}
			if ka != kb {
				return ka < kb
			}
		}
		return false
	})
}

func (h *Harness) validate(ctx context.Context, r *EntityRef) (any, error) {
	loaded, err := h.store.Load(ctx, r.EntityType, r.ID)
	if err != nil {
		return nil, err
	}
	rec, ok := loaded.(*entity.Record)
	if !ok {
		return nil, fmt.Errorf("validate %T: %w", loaded, entity.ErrUnsupportedEntity)
	}
	reg := h.store.Registry()
	fields, err := reg.FieldStorages(rec.EntityType)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(fields))
	for name, fs := range fields {
		if fs.IsReference() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := []FieldViolation{}
	for _, name := range names {
		fs := fields[name]
		list := ref.NewField(reg, h.store, fs.Settings).NewList()
		if err := list.SetReferences(rec.Refs[name]); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		violations, err := h.validator.ValidateList(ctx, list, fs.Settings)
		if err != nil {
			return nil, err
		}
		for _, v := range violations {
			out = append(out, FieldViolation{
				Field:      name,
				Code:       string(v.Code),
				Delta:      v.Delta,
				TargetType: v.TargetType,
				TargetID:   v.TargetID,
			})
		}
	}
	return out, nil
}

func (h *Harness) migrate(ctx context.Context, m *MigrateStep) (any, error) {
	var (
		res migrate.Result
		err error
	)
	if m.EntityType == "" {
		res, err = h.migrator.ReconcileAll(ctx)
	} else {
		res, err = h.migrator.Reconcile(ctx, m.EntityType, nil)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": res.CreatedCount()}, nil
}

// checkExpect compares a recorded step with its expect clause.
func checkExpect(expect *ExpectClause, ev TraceEvent) []string {
	if expect == nil {
		expect = &ExpectClause{}
	}
	if expect.Error != "" {
		if ev.Outcome != OutcomeError {
			return []string{fmt.Sprintf("expected error containing %q, step succeeded", expect.Error)}
		}
		if !strings.Contains(ev.Error, expect.Error) {
			return []string{fmt.Sprintf("expected error containing %q, got %q", expect.Error, ev.Error)}
		}
		return nil
	}
	if ev.Outcome == OutcomeError {
		return []string{"unexpected error: " + ev.Error}
	}

	var errs []string
	if expect.ID != "" {
		if out, ok := ev.Output.(map[string]any); !ok || out["id"] != expect.ID {
			errs = append(errs, fmt.Sprintf("expected id %s, got %v", expect.ID, ev.Output))
		}
	}
	if expect.Rows != nil {
		rows, _ := ev.Output.([]map[string]any)
		if len(rows) != *expect.Rows {
			errs = append(errs, fmt.Sprintf("expected %d row(s), got %d", *expect.Rows, len(rows)))
		}
	}
	if expect.Violations != nil {
		found, _ := ev.Output.([]FieldViolation)
		codes := make([]string, len(found))
		for i, v := range found {
			codes[i] = v.Code
		}
		if strings.Join(codes, ",") != strings.Join(expect.Violations, ",") {
			errs = append(errs, fmt.Sprintf("expected violations %v, got %v", expect.Violations, codes))
		}
	}
	if expect.Created != nil {
		if out, ok := ev.Output.(map[string]any); !ok || out["created"] != *expect.Created {
			errs = append(errs, fmt.Sprintf("expected %d created column(s), got %v", *expect.Created, ev.Output))
		}
	}
	return errs
}
