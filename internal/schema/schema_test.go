package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"mysql", MySQL, false},
		{"postgres", Postgres, false},
		{"pgx", Postgres, false},
		{"sqlite3", SQLite, false},
		{"SQLite", SQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDialectNaming(t *testing.T) {
	assert.Equal(t, "?", MySQL.Placeholder(3))
	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "?", SQLite.Placeholder(1))

	assert.Equal(t, "f_int", MySQL.IndexName("t", "f_int"))
	assert.Equal(t, "t__f_int__idx", Postgres.IndexName("t", "f_int"))
	assert.Equal(t, "t_f_int", SQLite.IndexName("t", "f_int"))
}

func TestSQLType(t *testing.T) {
	shadow := ColumnSpec{Type: TypeInt}
	assert.Equal(t, "BIGINT UNSIGNED NULL", MySQL.SQLType(shadow))
	assert.Equal(t, "BIGINT NULL", Postgres.SQLType(shadow))
	assert.Equal(t, "INTEGER NULL", SQLite.SQLType(shadow))

	str := ColumnSpec{Type: TypeVarchar, Length: 32, NotNull: true, Default: "''"}
	assert.Equal(t, "VARCHAR(32) NOT NULL DEFAULT ''", Postgres.SQLType(str))

	assert.Equal(t, "INTEGER PRIMARY KEY AUTOINCREMENT", SQLite.SQLType(ColumnSpec{Type: TypeSerial}))
	assert.Equal(t, "BIGSERIAL PRIMARY KEY", Postgres.SQLType(ColumnSpec{Type: TypeSerial}))
	assert.Equal(t, "SMALLINT NOT NULL DEFAULT 0", MySQL.SQLType(ColumnSpec{Type: TypeBool, NotNull: true, Default: "0"}))
}

func TestCheckIdentifier(t *testing.T) {
	assert.NoError(t, CheckIdentifier("node__field_ref", "schema.table", "Col_1"))
	for _, bad := range []string{"", "a b", "a;drop", `a"b`, "a-b"} {
		assert.ErrorIs(t, CheckIdentifier(bad), ErrInvalidIdentifier, bad)
	}
}

func TestCheckDelimiter(t *testing.T) {
	assert.NoError(t, CheckDelimiter("UPDATE t SET a = 0", ExecOptions{}))
	assert.NoError(t, CheckDelimiter("UPDATE t SET a = 0;", ExecOptions{}), "trailing delimiter is not inside the statement")
	assert.ErrorIs(t, CheckDelimiter("UPDATE t SET a = 0; DROP TABLE t", ExecOptions{}), ErrDelimiterNotAllowed)
	assert.NoError(t, CheckDelimiter("BEGIN UPDATE t SET a = 0; END", ExecOptions{AllowDelimiter: true}))
}

func TestCreateTableSQL(t *testing.T) {
	q, err := createTableSQL(SQLite, "p_alpha", TableSpec{
		Columns: []Column{
			{Name: "id", Spec: ColumnSpec{Type: TypeSerial}},
			{Name: "uuid", Spec: ColumnSpec{Type: TypeVarchar, Length: 128}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS p_alpha (id INTEGER PRIMARY KEY AUTOINCREMENT, uuid VARCHAR(128) NULL)", q)

	_, err = createTableSQL(SQLite, "bad name", TableSpec{})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	q, err = createTableSQL(MySQL, "alpha__f", TableSpec{
		Columns:    []Column{{Name: "entity_id", Spec: ColumnSpec{Type: TypeInt, NotNull: true}}, {Name: "delta", Spec: ColumnSpec{Type: TypeInt, NotNull: true}}},
		PrimaryKey: []string{"entity_id", "delta"},
	})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS alpha__f (entity_id BIGINT UNSIGNED NOT NULL, delta BIGINT UNSIGNED NOT NULL, PRIMARY KEY (entity_id, delta))", q)
}

func TestRebind(t *testing.T) {
	q := "SELECT 1 FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, q, Rebind(MySQL, q))
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b = $2", Rebind(Postgres, q))
}
