package schema

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// MySQL server error numbers for objects that already exist.
const (
	mysqlDupFieldName  = 1060
	mysqlDupKeyName    = 1061
	mysqlTableExists   = 1050
	mysqlTriggerExists = 1359
)

// Postgres SQLSTATE codes for objects that already exist.
const (
	pgDuplicateColumn = "42701"
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
	pgDuplicateFunc   = "42723"
)

// IsDuplicateObject reports whether err was caused by creating a column,
// index, table or trigger that already exists. Concurrent migrations of
// the same table produce these; callers treat them as success.
func IsDuplicateObject(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDupFieldName, mysqlDupKeyName, mysqlTableExists, mysqlTriggerExists:
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateColumn, pgDuplicateTable, pgDuplicateObject, pgDuplicateFunc:
			return true
		}
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrError && isDuplicateMessage(liteErr.Error())
	}

	// modernc.org/sqlite only exposes the message text.
	return isDuplicateMessage(err.Error())
}

func isDuplicateMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
}
