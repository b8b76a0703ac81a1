package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/migrate"
	"github.com/roach88/polyref/internal/store"
	"github.com/roach88/polyref/internal/testutil"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m, err := migrate.New(st.Registry(), st.Schema())
	require.NoError(t, err)
	st.AddListener(m)
	_, err = testutil.LoadFixture(t, "blog.yaml").Seed(context.Background(), st)
	require.NoError(t, err)
	return st
}

func TestEvaluateAssertions(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "column values match",
			assertion: Assertion{Type: AssertColumnValues, Table: "user", Column: "label", Values: []any{"alice", "bob"}},
		},
		{
			name:      "column values by text form",
			assertion: Assertion{Type: AssertColumnValues, Table: "user", Column: "id", Values: []any{1, "2"}},
		},
		{
			name:      "column values order_by",
			assertion: Assertion{Type: AssertColumnValues, Table: "tag", Column: "id", OrderBy: []string{"label"}, Values: []any{"go", "42"}},
		},
		{
			name:      "column values differ",
			assertion: Assertion{Type: AssertColumnValues, Table: "user", Column: "label", Values: []any{"bob", "alice"}},
			wantErr:   "Expected: label = [bob, alice]",
		},
		{
			name:      "null matches null",
			assertion: Assertion{Type: AssertColumnValues, Table: "node__related", Column: "related_target_id_int", OrderBy: []string{"delta"}, Values: []any{nil, 2, 42}},
		},
		{
			name:      "final state match",
			assertion: Assertion{Type: AssertFinalState, Table: "node__related", Where: map[string]any{"delta": 1}, Expect: map[string]any{"related_target_type": "user", "deleted": false}},
		},
		{
			name:      "final state null where",
			assertion: Assertion{Type: AssertFinalState, Table: "node__related", Where: map[string]any{"related_target_id_int": nil}, Expect: map[string]any{"related_target_id": "go"}},
		},
		{
			name:      "final state mismatch",
			assertion: Assertion{Type: AssertFinalState, Table: "user", Where: map[string]any{"id": 2}, Expect: map[string]any{"label": "carol"}},
			wantErr:   "label = carol where id=2",
		},
		{
			name:      "final state no rows",
			assertion: Assertion{Type: AssertFinalState, Table: "user", Where: map[string]any{"id": 9}, Expect: map[string]any{"label": "x"}},
			wantErr:   "no rows found",
		},
		{
			name:      "final state ambiguous",
			assertion: Assertion{Type: AssertFinalState, Table: "user", Expect: map[string]any{"label": "alice"}},
			wantErr:   "2 rows matched",
		},
		{
			name:      "unknown table",
			assertion: Assertion{Type: AssertColumnValues, Table: "nope", Column: "id"},
			wantErr:   "column_values nope.id",
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "row_count", Table: "user"},
			wantErr:   `unknown assertion type "row_count"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(ctx, st, []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(nil, nil))
	assert.True(t, sameValue(3, "3"))
	assert.True(t, sameValue(true, "1"))
	assert.True(t, sameValue(false, "0"))
	assert.False(t, sameValue(nil, ""))
	assert.False(t, sameValue("", nil))
	assert.False(t, sameValue(3, "03"))
}
