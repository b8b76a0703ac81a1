package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/model"
)

func compileFrom(t *testing.T, src, path string) (*model.EntityType, []model.FieldStorage, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileEntityType(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileEntityType_Minimal(t *testing.T) {
	et, fields, err := compileFrom(t, `entity_type: foo: {}`, "entity_type.foo")
	require.NoError(t, err)

	assert.Equal(t, "foo", et.ID)
	assert.Equal(t, "foo", et.Label)
	assert.Equal(t, model.KindInteger, et.IDKind)
	assert.True(t, et.SQLStorage)
	assert.False(t, et.Revisionable)
	assert.Empty(t, et.Bundles)
	assert.Empty(t, fields)
}

func TestCompileEntityType_Full(t *testing.T) {
	src := `
entity_type: node: {
	label:               "Content"
	data_table:          "node_field_data"
	revision_data_table: "node_field_revision"
	revisionable:        true
	bundles: ["article", "page"]
	fields: {
		owner: {
			type:         "dynamic_entity_reference"
			base:         true
			revisionable: true
			settings: {
				exclude_entity_types: false
				entity_type_ids: ["user", "Taxonomy_Term"]
				bundles: taxonomy_term: ["tags"]
			}
		}
		refs: {
			type:        "dynamic_entity_reference"
			cardinality: -1
		}
	}
}
`
	et, fields, err := compileFrom(t, src, "entity_type.node")
	require.NoError(t, err)

	assert.Equal(t, "Content", et.Label)
	assert.Equal(t, "node_field_data", et.DataTable)
	assert.Equal(t, "node_field_revision", et.RevisionDataTable)
	assert.True(t, et.Revisionable)
	assert.Equal(t, []string{"article", "page"}, et.Bundles)

	require.Len(t, fields, 2)
	owner := fields[0]
	assert.Equal(t, "owner", owner.Name)
	assert.Equal(t, "node", owner.EntityTypeID)
	assert.True(t, owner.IsReference())
	assert.True(t, owner.Base)
	assert.True(t, owner.Revisionable)
	assert.Equal(t, 1, owner.Cardinality)
	assert.False(t, owner.Settings.Exclude)
	assert.Equal(t, []string{"user", "Taxonomy_Term"}, owner.Settings.EntityTypeIDs)
	assert.Equal(t, map[string][]string{"taxonomy_term": {"tags"}}, owner.Settings.Bundles)

	refs := fields[1]
	assert.Equal(t, "refs", refs.Name)
	assert.Equal(t, model.CardinalityUnlimited, refs.Cardinality)
	assert.True(t, refs.Settings.Exclude, "settings default to allowing every type")
	assert.Empty(t, refs.Settings.EntityTypeIDs)
}

func TestCompileEntityType_StringKindAndStorage(t *testing.T) {
	src := `
entity_type: config_thing: {
	id_kind:     "string"
	sql_storage: false
}
`
	et, _, err := compileFrom(t, src, "entity_type.config_thing")
	require.NoError(t, err)
	assert.Equal(t, model.KindString, et.IDKind)
	assert.False(t, et.SQLStorage)
}

func TestCompileEntityType_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "unknown id kind",
			src:     `entity_type: foo: id_kind: "uuid"`,
			wantErr: `unknown identifier kind "uuid"`,
		},
		{
			name:    "field without type",
			src:     `entity_type: foo: fields: ref: cardinality: 2`,
			wantErr: "field ref: type is required",
		},
		{
			name:    "label not a string",
			src:     `entity_type: foo: label: 3`,
			wantErr: "label",
		},
		{
			name:    "bundles not a map of lists",
			src:     `entity_type: foo: fields: ref: {type: "dynamic_entity_reference", settings: bundles: "bar"}`,
			wantErr: "settings.bundles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := compileFrom(t, tt.src, "entity_type.foo")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileEntityType_Missing(t *testing.T) {
	_, _, err := compileFrom(t, `entity_type: foo: {}`, "entity_type.bar")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "entity_type", ce.Field)
}

func TestCompileError_Position(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString("entity_type: foo: {\n\tid_kind: \"uuid\"\n}", cue.Filename("registry.cue"))
	require.NoError(t, v.Err())

	_, _, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity_type.foo")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.cue:2:")
}
