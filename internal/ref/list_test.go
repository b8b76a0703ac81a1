package ref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

func TestReferencedEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.save(t, "alpha", "a1")
	a2 := f.save(t, "alpha", "a2")
	b := f.save(t, "beta", "b")
	fresh := entity.NewRecord("beta", "", "fresh")

	list := f.field(model.DefaultTargetTypeSettings()).NewList()
	require.NoError(t, list.SetValues([]any{
		Value{TargetType: "beta", TargetID: b.ID()},
		Value{TargetType: "alpha", TargetID: a2.ID()},
		fresh,
		Value{TargetType: "alpha", TargetID: 99},
		Value{TargetType: "alpha", TargetID: a1.ID()},
		Value{TargetType: "alpha", TargetID: a2.ID()},
		nil,
	}))

	entities, err := list.ReferencedEntities(ctx)
	require.NoError(t, err)

	labels := make([]string, len(entities))
	for i, e := range entities {
		labels[i] = e.Label()
	}
	assert.Equal(t, []string{"b", "a2", "fresh", "a1", "a2"}, labels)
	assert.Equal(t, 2, f.storage.Loads(), "one load per target type")
}

func TestListAppendAndFilter(t *testing.T) {
	f := newFixture(t)
	list := f.field(model.TargetTypeSettings{EntityTypeIDs: []string{"alpha"}}).NewList()

	require.NoError(t, list.Append(1))
	require.NoError(t, list.Append(nil))
	require.NoError(t, list.Append(3))
	err := list.Append("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delta 3")
	assert.Equal(t, 3, list.Len())

	list.FilterEmpty()
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, "3", list.Get(1).TargetID().String())
	assert.Nil(t, list.Get(5))

	assert.Equal(t, []model.Reference{
		{TargetType: "alpha", TargetID: model.IntID(1)},
		{TargetType: "alpha", TargetID: model.IntID(3)},
	}, list.References())
}

func TestSetValuesAtomic(t *testing.T) {
	f := newFixture(t)
	list := f.field(model.DefaultTargetTypeSettings()).NewList()
	require.NoError(t, list.SetReferences([]model.Reference{{TargetType: "alpha", TargetID: model.IntID(1)}}))

	err := list.SetValues([]any{Value{TargetType: "alpha", TargetID: 2}, Value{TargetID: 3}})
	require.Error(t, err)
	assert.True(t, IsInvalidReference(err))
	assert.Equal(t, 1, list.Len())
	assert.Equal(t, "1", list.Get(0).TargetID().String())
}

func TestListPreSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list := f.field(model.DefaultTargetTypeSettings()).NewList()
	require.NoError(t, list.SetValues([]any{
		entity.NewRecord("alpha", "", "x"),
		entity.NewRecord("beta", "", "y"),
	}))
	require.NoError(t, list.PreSave(ctx))

	refs := list.References()
	require.Len(t, refs, 2)
	assert.Equal(t, "1", refs[0].TargetID.String())
	assert.Equal(t, "beta", refs[1].TargetType)
	assert.False(t, refs[1].TargetID.IsZero())
}

func TestProcessDefaultValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.save(t, "alpha", "a")
	b := f.save(t, "beta", "b")

	list := f.field(model.DefaultTargetTypeSettings()).NewList()
	require.NoError(t, list.ProcessDefaultValue(ctx, []DefaultValue{
		{TargetType: "beta", TargetUUID: b.UUID()},
		{TargetType: "alpha", TargetUUID: "missing"},
		{TargetType: "alpha", TargetUUID: a.UUID()},
		{TargetType: "alpha", TargetID: model.IntID(5)},
	}))

	assert.Equal(t, []model.Reference{
		{TargetType: "beta", TargetID: b.ID()},
		{TargetType: "alpha", TargetID: a.ID()},
		{TargetType: "alpha", TargetID: model.IntID(5)},
	}, list.References())

	list.FilterEmpty()
	require.NoError(t, list.SetValues([]any{a, b}))
	defaults, err := list.DefaultValueUUIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DefaultValue{
		{TargetType: "alpha", TargetUUID: a.UUID()},
		{TargetType: "beta", TargetUUID: b.UUID()},
	}, defaults)
}
