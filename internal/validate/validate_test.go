package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/ref"
)

type fixture struct {
	registry *entity.MemoryRegistry
	storage  *entity.MemoryStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := entity.NewMemoryRegistry()
	for _, et := range []model.EntityType{
		{ID: "article", IDKind: model.KindInteger, Bundles: []string{"news", "blog"}},
		{ID: "user", IDKind: model.KindInteger},
		{ID: "page", IDKind: model.KindString},
	} {
		require.NoError(t, r.RegisterType(et))
	}
	return &fixture{registry: r, storage: entity.NewMemoryStorage(r)}
}

func (f *fixture) item(t *testing.T, settings model.TargetTypeSettings, v any) *ref.Item {
	t.Helper()
	it := ref.NewField(f.registry, f.storage, settings).NewItem()
	require.NoError(t, it.SetValue(v))
	return it
}

func (f *fixture) saveArticle(t *testing.T, id uint64, bundle string) {
	t.Helper()
	rec := entity.NewRecord("article", bundle, "")
	rec.Identifier = model.IntID(id)
	rec.EnforceNew = true
	require.NoError(t, f.storage.Save(context.Background(), rec))
}

func codes(vs []Violation) []ViolationCode {
	out := make([]ViolationCode, len(vs))
	for i, v := range vs {
		out[i] = v.Code
	}
	return out
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	f.saveArticle(t, 10, "news")
	ctx := context.Background()
	v := New(f.registry)

	allowList := model.TargetTypeSettings{EntityTypeIDs: []string{"article", "user"}}

	tests := []struct {
		name     string
		settings model.TargetTypeSettings
		value    any
		want     []ViolationCode
	}{
		{
			name:     "existing allowed target",
			settings: allowList,
			value:    ref.Value{TargetType: "article", TargetID: "10"},
			want:     []ViolationCode{},
		},
		{
			name:     "disallowed type",
			settings: allowList,
			value:    ref.Value{TargetType: "page", TargetID: "home"},
			want:     []ViolationCode{CodeDisallowedTargetType},
		},
		{
			name:     "empty reference with allowed type",
			settings: allowList,
			value:    ref.Value{TargetType: "user"},
			want:     []ViolationCode{},
		},
		{
			name:     "zero id with allowed type",
			settings: allowList,
			value:    ref.Value{TargetType: "user", TargetID: "0"},
			want:     []ViolationCode{},
		},
		{
			name:     "empty reference with disallowed type",
			settings: allowList,
			value:    ref.Value{TargetType: "page"},
			want:     []ViolationCode{CodeDisallowedTargetType},
		},
		{
			name:     "fully empty",
			settings: allowList,
			value:    nil,
			want:     []ViolationCode{},
		},
		{
			name:     "dangling",
			settings: allowList,
			value:    ref.Value{TargetType: "article", TargetID: "11"},
			want:     []ViolationCode{CodeDanglingReference},
		},
		{
			name:     "unregistered type in exclude mode",
			settings: model.DefaultTargetTypeSettings(),
			value:    ref.Value{TargetType: "ghost", TargetID: "1"},
			want:     []ViolationCode{CodeDisallowedTargetType},
		},
		{
			name: "bundle allowed",
			settings: model.TargetTypeSettings{
				EntityTypeIDs: []string{"article"},
				Bundles:       map[string][]string{"article": {"news"}},
			},
			value: ref.Value{TargetType: "article", TargetID: "10"},
			want:  []ViolationCode{},
		},
		{
			name: "bundle not allowed",
			settings: model.TargetTypeSettings{
				EntityTypeIDs: []string{"article"},
				Bundles:       map[string][]string{"article": {"blog"}},
			},
			value: ref.Value{TargetType: "article", TargetID: "10"},
			want:  []ViolationCode{CodeDisallowedBundle},
		},
		{
			name: "explicitly empty bundle set",
			settings: model.TargetTypeSettings{
				EntityTypeIDs: []string{"article"},
				Bundles:       map[string][]string{"article": {}},
			},
			value: ref.Value{TargetType: "article", TargetID: "10"},
			want:  []ViolationCode{CodeDisallowedBundle},
		},
		{
			name: "restriction on another type",
			settings: model.TargetTypeSettings{
				EntityTypeIDs: []string{"article", "user"},
				Bundles:       map[string][]string{"user": {}},
			},
			value: ref.Value{TargetType: "article", TargetID: "10"},
			want:  []ViolationCode{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(ctx, f.item(t, tt.settings, tt.value), tt.settings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(got))
		})
	}
}

func TestValidateDanglingMessage(t *testing.T) {
	f := newFixture(t)
	settings := model.DefaultTargetTypeSettings()

	got, err := New(f.registry).Validate(context.Background(), f.item(t, settings, ref.Value{TargetType: "user", TargetID: 5}), settings)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The referenced entity (user: 5) does not exist.", got[0].Message)
	assert.Equal(t, "user", got[0].TargetType)
	assert.Equal(t, "5", got[0].TargetID)
}

func TestValidateNewEntity(t *testing.T) {
	f := newFixture(t)
	settings := model.TargetTypeSettings{EntityTypeIDs: []string{"article"}}

	got, err := New(f.registry).Validate(context.Background(), f.item(t, settings, entity.NewRecord("article", "news", "draft")), settings)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = New(f.registry).Validate(context.Background(), f.item(t, settings, entity.NewRecord("user", "", "")), settings)
	require.NoError(t, err)
	assert.Equal(t, []ViolationCode{CodeDisallowedTargetType}, codes(got))
}

func TestValidateListCollectsAll(t *testing.T) {
	f := newFixture(t)
	f.saveArticle(t, 10, "news")
	settings := model.TargetTypeSettings{EntityTypeIDs: []string{"article", "user"}}

	list := ref.NewField(f.registry, f.storage, settings).NewList()
	require.NoError(t, list.SetValues([]any{
		ref.Value{TargetType: "article", TargetID: 10},
		ref.Value{TargetType: "page", TargetID: "home"},
		ref.Value{TargetType: "user", TargetID: 3},
	}))

	got, err := New(f.registry).ValidateList(context.Background(), list, settings)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, CodeDisallowedTargetType, got[0].Code)
	assert.Equal(t, 1, got[0].Delta)
	assert.Equal(t, CodeDanglingReference, got[1].Code)
	assert.Equal(t, 2, got[1].Delta)
}
