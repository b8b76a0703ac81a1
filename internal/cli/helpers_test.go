package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/config"
	"github.com/roach88/polyref/internal/store"
)

// testOptions returns root options backed by a fresh SQLite database and
// the testdata registry.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format: format,
		Config: &config.Config{
			Database: config.Database{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "polyref.db")},
			Registry: filepath.Join("testdata", "registry"),
			Log:      config.Log{Level: "error", Format: "text"},
		},
	}
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// migratedStore runs migrate for opts and opens the database with the
// loaded registry.
func migratedStore(t *testing.T, opts *RootOptions) *store.Store {
	t.Helper()
	_, err := execute(t, NewMigrateCommand(opts))
	require.NoError(t, err)

	loaded, errs := LoadRegistry(opts.Config.Registry, LoadModeFailFast)
	require.Empty(t, errs)
	reg, err := loaded.Registry()
	require.NoError(t, err)

	db := opts.Config.Database
	st, err := store.Connect(context.Background(), db.Driver, db.DSN, db.Prefix, store.WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
