package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDDL_SQLiteText(t *testing.T) {
	out, err := execute(t, NewDDLCommand(&RootOptions{Format: "text"}),
		"--table", "node_field_data", "--column", "owner__target_id:owner__target_type")
	require.NoError(t, err)

	assert.Contains(t, out, "DROP TRIGGER IF EXISTS node_field_data_der_insert;\n")
	assert.Contains(t, out, "CREATE TRIGGER node_field_data_der_update AFTER UPDATE ON node_field_data")
	assert.Contains(t, out, "owner__target_id_int = CASE WHEN NEW.owner__target_id GLOB")
}

func TestDDL_PrefixAndJSON(t *testing.T) {
	out, err := execute(t, NewDDLCommand(&RootOptions{Format: "json"}),
		"--dialect", "mysql", "--prefix", "p_", "--table", "node__refs",
		"--column", "refs_target_id:refs_target_type")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   DDLResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mysql", resp.Data.Dialect)
	assert.Equal(t, "p_node__refs", resp.Data.Table)
	assert.Equal(t, []string{"p_node__refs_der_insert", "p_node__refs_der_update"}, resp.Data.Triggers)
	assert.NotEmpty(t, resp.Data.Statements)
}

func TestDDL_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad dialect", []string{"--dialect", "oracle", "--table", "t", "--column", "a:b"}, ErrCodeUsage},
		{"bad column", []string{"--table", "t", "--column", "a"}, ErrCodeUsage},
		{"bad identifier", []string{"--table", "t;drop", "--column", "a:b"}, ErrCodeUsage},
		{"missing table", []string{"--column", "a:b"}, "required flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewDDLCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseColumnPairs(t *testing.T) {
	pairs, err := parseColumnPairs([]string{"a__target_id:a__target_type", "b_target_id:b_target_type"})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a__target_id_int", pairs[0].Shadow())
	assert.Equal(t, "b_target_type", pairs[1].TypeColumn)

	_, err = parseColumnPairs([]string{":x"})
	assert.Error(t, err)
}
