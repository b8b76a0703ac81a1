package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJoin() Join {
	return Join{
		Left: Select{
			From:     "node",
			Alias:    "s",
			Bindings: map[string]string{"s.id": "source_id"},
		},
		Right: Select{
			From:     "user",
			Alias:    "t",
			Bindings: map[string]string{"t.id": "target_id"},
		},
		On: And{Predicates: []Predicate{
			FieldEquals{Left: "s.owner__target_id_int", Right: "t.id"},
			Equals{Field: "s.owner__target_type", Value: "user"},
		}},
		Kind: JoinLeft,
	}
}

func TestValidateAcceptsPlannedJoin(t *testing.T) {
	result := Validate(validJoin())
	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		query func() Query
		want  string
	}{
		{
			name:  "nil query",
			query: func() Query { return nil },
			want:  "nil query",
		},
		{
			name:  "missing table",
			query: func() Query { return Select{Alias: "s"} },
			want:  "select without table",
		},
		{
			name: "duplicate alias",
			query: func() Query {
				j := validJoin()
				j.Right.Alias = "s"
				return j
			},
			want: `duplicate alias "s"`,
		},
		{
			name: "cross join",
			query: func() Query {
				j := validJoin()
				j.On = nil
				return j
			},
			want: `join of "t" without ON condition`,
		},
		{
			name: "unknown alias",
			query: func() Query {
				j := validJoin()
				j.On = FieldEquals{Left: "x.id", Right: "t.id"}
				return &j
			},
			want: `column "x.id" refers to unknown alias "x"`,
		},
		{
			name: "nil comparison",
			query: func() Query {
				return Select{From: "node", Filter: Equals{Field: "node.id"}}
			},
			want: `column "node.id" compared to nil - use IsNull`,
		},
		{
			name: "empty column",
			query: func() Query {
				return Select{From: "node", Filter: IsNull{}}
			},
			want: "empty column reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query())
			assert.False(t, result.Valid)
			assert.Contains(t, result.Errors, tt.want)
		})
	}
}

func TestValidateRightAliasNotVisibleToLeftFilter(t *testing.T) {
	// Aliases are registered left to right, so the left side cannot
	// reference a table joined later.
	j := validJoin()
	left := j.Left.(Select)
	left.Filter = IsNull{Field: "t.id"}
	j.Left = left

	result := Validate(j)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors, `column "t.id" refers to unknown alias "t"`)
}

func TestValidateWarnsWithoutBindings(t *testing.T) {
	result := Validate(Select{From: "node", OrderBy: []string{"node.id"}})
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"no bindings - query selects every column"}, result.Warnings)
}

func TestValidateUnqualifiedColumnsAccepted(t *testing.T) {
	result := Validate(Select{
		From:     "node",
		Filter:   And{Predicates: []Predicate{IsNull{Field: "label", Not: true}}},
		Bindings: map[string]string{"id": "id"},
	})
	assert.True(t, result.Valid, "errors: %v", result.Errors)
}

func TestValidateIn(t *testing.T) {
	result := Validate(Select{
		From:     "node",
		Filter:   In{Field: "node.id", Values: []any{1, nil}},
		Bindings: map[string]string{"node.id": "id"},
	})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, `column "node.id" list contains nil`)

	result = Validate(Select{
		From:     "node",
		Filter:   &In{Field: "node.id"},
		Bindings: map[string]string{"node.id": "id"},
	})
	assert.True(t, result.Valid)
	assert.Equal(t, []string{`column "node.id" tested against an empty list`}, result.Warnings)
}
