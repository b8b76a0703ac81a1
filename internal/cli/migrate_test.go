package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polyref/internal/migrate"
)

func TestMigrate_CreatesShadowColumns(t *testing.T) {
	opts := testOptions(t, "text")

	out, err := execute(t, NewMigrateCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 4 shadow column(s) created")
	assert.Contains(t, out, "node_field_data.owner__target_id_int")
	assert.Contains(t, out, "node_field_revision.owner__target_id_int")
	assert.Contains(t, out, "node__related.related_target_id_int")
	assert.Contains(t, out, "node_revision__related.related_target_id_int")

	out, err = execute(t, NewMigrateCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 0 shadow column(s) created")
}

func TestMigrate_JSONSingleType(t *testing.T) {
	opts := testOptions(t, "json")

	out, err := execute(t, NewMigrateCommand(opts), "--entity-type", "node")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   migrate.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.CreatedCount())
	assert.Equal(t, []string{"related_target_id_int"}, resp.Data.Created["node__related"])
}

func TestMigrate_NoInstallSkipsMissingTables(t *testing.T) {
	opts := testOptions(t, "text")

	out, err := execute(t, NewMigrateCommand(opts), "--no-install")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 0 shadow column(s) created")
}

func TestMigrate_UnknownEntityType(t *testing.T) {
	opts := testOptions(t, "text")
	_, err := execute(t, NewMigrateCommand(opts), "--entity-type", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrate_BadConfig(t *testing.T) {
	opts := testOptions(t, "text")
	opts.Config.Database.Driver = "oracle"
	_, err := execute(t, NewMigrateCommand(opts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeConfig)
}
