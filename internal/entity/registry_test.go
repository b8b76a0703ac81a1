package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/model"
)

// countingRegistry counts IdentifierKind calls reaching the wrapped registry.
type countingRegistry struct {
	*MemoryRegistry
	kindCalls int
}

func (c *countingRegistry) IdentifierKind(id string) (model.IdentifierKind, error) {
	c.kindCalls++
	return c.MemoryRegistry.IdentifierKind(id)
}

func newTestRegistry(t *testing.T) *MemoryRegistry {
	t.Helper()
	r := NewMemoryRegistry()
	require.NoError(t, r.RegisterType(model.EntityType{ID: "alpha", IDKind: model.KindInteger, SQLStorage: true}))
	require.NoError(t, r.RegisterType(model.EntityType{ID: "Beta", IDKind: model.KindString, SQLStorage: true}))
	return r
}

func TestMemoryRegistryTypes(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, []string{"alpha", "beta"}, r.TypeIDs())

	kind, err := r.IdentifierKind("BETA")
	require.NoError(t, err)
	assert.Equal(t, model.KindString, kind)

	_, err = r.EntityType("gamma")
	assert.ErrorIs(t, err, ErrUnknownType)

	assert.Error(t, r.RegisterType(model.EntityType{ID: "  "}))
}

func TestMemoryRegistryFields(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterField(model.FieldStorage{EntityTypeID: "beta", Name: "field_ref", Type: model.FieldTypeReference, Cardinality: 1}))
	require.NoError(t, r.RegisterField(model.FieldStorage{EntityTypeID: "alpha", Name: "field_ref", Type: model.FieldTypeReference, Cardinality: -1}))
	require.NoError(t, r.RegisterField(model.FieldStorage{EntityTypeID: "alpha", Name: "title", Type: "string", Cardinality: 1}))

	err := r.RegisterField(model.FieldStorage{EntityTypeID: "gamma", Name: "x"})
	assert.ErrorIs(t, err, ErrUnknownType)

	fields, err := r.FieldStorages("alpha")
	require.NoError(t, err)
	assert.Len(t, fields, 2)

	refs := r.FieldStoragesByType(model.FieldTypeReference)
	require.Len(t, refs, 2)
	assert.Equal(t, "alpha.field_ref", refs[0].Key())
	assert.Equal(t, "beta.field_ref", refs[1].Key())

	// Returned maps are copies.
	delete(fields, "title")
	fields, _ = r.FieldStorages("alpha")
	assert.Len(t, fields, 2)
}

func TestKindCacheMemoises(t *testing.T) {
	inner := &countingRegistry{MemoryRegistry: newTestRegistry(t)}
	c := NewKindCache(inner, 0)

	for i := 0; i < 3; i++ {
		kind, err := c.IdentifierKind("alpha")
		require.NoError(t, err)
		assert.Equal(t, model.KindInteger, kind)
	}
	assert.Equal(t, 1, inner.kindCalls)

	_, err := c.IdentifierKind("gamma")
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = c.IdentifierKind("gamma")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, 3, inner.kindCalls, "errors are not cached")

	c.Forget("alpha")
	_, err = c.IdentifierKind("alpha")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.kindCalls)

	// Pass-through methods reach the wrapped registry.
	assert.Equal(t, []string{"alpha", "beta"}, c.TypeIDs())
}

func TestKindCacheExpiry(t *testing.T) {
	inner := &countingRegistry{MemoryRegistry: newTestRegistry(t)}
	c := NewKindCache(inner, 10*time.Millisecond)

	_, err := c.IdentifierKind("alpha")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = c.IdentifierKind("alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.kindCalls)
}
