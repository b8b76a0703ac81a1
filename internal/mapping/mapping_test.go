package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/model"
)

func TestResolve(t *testing.T) {
	node := model.EntityType{ID: "node", DataTable: "node_field_data", RevisionDataTable: "node_field_revision", Revisionable: true, SQLStorage: true}
	alpha := model.EntityType{ID: "alpha", SQLStorage: true}

	tests := []struct {
		name      string
		et        model.EntityType
		fs        model.FieldStorage
		dedicated bool
		tables    []string
		columns   Pair
	}{
		{
			name:    "shared base field",
			et:      alpha,
			fs:      model.FieldStorage{Name: "owner", Base: true, Cardinality: 1},
			tables:  []string{"alpha"},
			columns: Pair{TargetID: "owner__target_id", TargetType: "owner__target_type"},
		},
		{
			name:    "shared revisionable field",
			et:      node,
			fs:      model.FieldStorage{Name: "owner", Base: true, Cardinality: 1, Revisionable: true},
			tables:  []string{"node_field_data", "node_field_revision"},
			columns: Pair{TargetID: "owner__target_id", TargetType: "owner__target_type"},
		},
		{
			name:    "shared field not revisionable",
			et:      node,
			fs:      model.FieldStorage{Name: "owner", Base: true, Cardinality: 1},
			tables:  []string{"node_field_data"},
			columns: Pair{TargetID: "owner__target_id", TargetType: "owner__target_type"},
		},
		{
			name:      "configurable field",
			et:        alpha,
			fs:        model.FieldStorage{Name: "field_ref", Cardinality: 1},
			dedicated: true,
			tables:    []string{"alpha__field_ref"},
			columns:   Pair{TargetID: "field_ref_target_id", TargetType: "field_ref_target_type"},
		},
		{
			name:      "multi-value base field",
			et:        node,
			fs:        model.FieldStorage{Name: "refs", Base: true, Cardinality: model.CardinalityUnlimited, Revisionable: true},
			dedicated: true,
			tables:    []string{"node__refs", "node_revision__refs"},
			columns:   Pair{TargetID: "refs_target_id", TargetType: "refs_target_type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fs.EntityTypeID = tt.et.ID
			ft, err := Resolve(tt.et, tt.fs)
			require.NoError(t, err)
			assert.Equal(t, tt.dedicated, ft.Dedicated)
			assert.Equal(t, tt.tables, ft.Tables())
			assert.Equal(t, tt.columns, ft.Columns)
		})
	}
}

func TestResolveUnmapped(t *testing.T) {
	et := model.EntityType{ID: "alpha", SQLStorage: true}

	_, err := Resolve(et, model.FieldStorage{EntityTypeID: "alpha", Name: "computed", CustomStorage: true})
	assert.ErrorIs(t, err, ErrUnmappedField)

	_, err = Resolve(model.EntityType{ID: "config"}, model.FieldStorage{EntityTypeID: "config", Name: "ref", Cardinality: 1})
	assert.ErrorIs(t, err, ErrUnmappedField)
}

func TestStorageKinds(t *testing.T) {
	base := model.FieldStorage{Base: true, Cardinality: 1}
	assert.True(t, AllowsSharedStorage(base))
	assert.False(t, RequiresDedicatedStorage(base))

	multi := model.FieldStorage{Base: true, Cardinality: 3}
	assert.False(t, AllowsSharedStorage(multi))
	assert.True(t, RequiresDedicatedStorage(multi))

	custom := model.FieldStorage{CustomStorage: true, Cardinality: 3}
	assert.False(t, AllowsSharedStorage(custom))
	assert.False(t, RequiresDedicatedStorage(custom))
}
