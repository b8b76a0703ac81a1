package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/migrate"
	"github.com/roach88/polyref/internal/model"
)

// createTestStore creates a new store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Entity types used across store tests.
var (
	fooType = model.EntityType{ID: "foo", IDKind: model.KindInteger, SQLStorage: true}
	barType = model.EntityType{ID: "bar", IDKind: model.KindInteger, SQLStorage: true}
	tagType = model.EntityType{ID: "tag", IDKind: model.KindString, SQLStorage: true}

	nodeType = model.EntityType{
		ID:                "node",
		IDKind:            model.KindInteger,
		DataTable:         "node_field_data",
		RevisionDataTable: "node_field_revision",
		Revisionable:      true,
		SQLStorage:        true,
	}
	ownerField = model.FieldStorage{
		Name: "owner", Type: model.FieldTypeReference,
		Cardinality: 1, Base: true, Revisionable: true,
	}
	refsField = model.FieldStorage{
		Name: "refs", Type: model.FieldTypeReference,
		Cardinality: model.CardinalityUnlimited, Revisionable: true,
	}
)

// createMigratedStore installs foo, bar, tag and node with a migrator
// listening for schema events.
func createMigratedStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := createTestStore(t)
	m, err := migrate.New(s.Registry(), s.Schema())
	require.NoError(t, err)
	s.AddListener(m)

	for _, et := range []model.EntityType{fooType, barType, tagType} {
		require.NoError(t, s.InstallEntityType(ctx, et))
	}
	require.NoError(t, s.InstallEntityType(ctx, nodeType, ownerField, refsField))
	return s
}
