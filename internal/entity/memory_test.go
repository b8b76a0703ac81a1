package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/model"
)

func TestMemoryStorageSaveAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(newTestRegistry(t))

	a1 := NewRecord("alpha", "", "first")
	a2 := NewRecord("alpha", "", "second")
	b := NewRecord("beta", "", "bee")
	assert.True(t, a1.IsNew())

	require.NoError(t, s.Save(ctx, a1))
	require.NoError(t, s.Save(ctx, a2))
	require.NoError(t, s.Save(ctx, b))

	assert.Equal(t, "1", a1.ID().String())
	assert.Equal(t, "2", a2.ID().String())
	assert.False(t, a1.IsNew())
	assert.NotEmpty(t, a1.UUID())
	assert.Equal(t, uint64(1), a1.RevisionID)
	assert.Equal(t, "alpha", a1.Bundle())

	assert.False(t, model.IsNumericID(b.ID().String()))
	assert.Len(t, b.ID().String(), 36)
}

func TestMemoryStorageExplicitID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(newTestRegistry(t))

	rec := NewRecord("alpha", "", "")
	rec.Identifier = model.IntID(10)
	rec.EnforceNew = true
	require.NoError(t, s.Save(ctx, rec))

	next := NewRecord("alpha", "", "")
	require.NoError(t, s.Save(ctx, next))
	assert.Equal(t, "11", next.ID().String())

	bad := NewRecord("alpha", "", "")
	bad.Identifier = model.StringID("x")
	assert.Error(t, s.Save(ctx, bad))
}

func TestMemoryStorageLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(newTestRegistry(t))

	rec := NewRecord("alpha", "", "one")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, "alpha", model.IntID(1))
	require.NoError(t, err)
	assert.Equal(t, "one", got.Label())

	_, err = s.Load(ctx, "alpha", model.IntID(2))
	assert.ErrorIs(t, err, ErrNotFound)

	many, err := s.LoadMultiple(ctx, "alpha", []model.TargetID{model.IntID(1), model.IntID(7)})
	require.NoError(t, err)
	assert.Len(t, many, 1)
	assert.Contains(t, many, "1")

	byUUID, err := s.LoadByUUID(ctx, "alpha", []string{rec.UUID(), "nope"})
	require.NoError(t, err)
	assert.Len(t, byUUID, 1)

	s.Delete(ctx, "alpha", model.IntID(1))
	_, err = s.Load(ctx, "alpha", model.IntID(1))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 4, s.Loads())
}

type foreignEntity struct{ Record }

func TestMemoryStorageRejectsForeignEntities(t *testing.T) {
	s := NewMemoryStorage(newTestRegistry(t))
	err := s.Save(context.Background(), &foreignEntity{})
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
}

func TestRecordClone(t *testing.T) {
	rec := NewRecord("alpha", "", "")
	rec.SetRefs("field_ref", []model.Reference{{TargetType: "beta", TargetID: model.StringID("x")}})

	c := rec.Clone()
	c.Refs["field_ref"][0].TargetType = "alpha"
	assert.Equal(t, "beta", rec.Refs["field_ref"][0].TargetType)
}
