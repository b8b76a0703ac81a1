// Package shadow keeps integer shadow columns in sync with string target id
// columns.
//
// For every string column c holding target ids, a nullable integer column
// c_int is added next to it, indexed together with the sibling type column.
// Database triggers recompute c_int on every insert and update:
//
//	c_int = c when c matches ^[0-9]+$, otherwise NULL
//
// Joins against integer-identified entity types use c_int so they can use an
// index and compare integers instead of strings.
//
// Each engine gets its own trigger DDL behind the Dialect interface:
//   - MySQL: one BEFORE trigger per operation, all shadow columns in a
//     single SET list
//   - Postgres: one plpgsql function and BEFORE INSERT OR UPDATE trigger
//     per shadow column
//   - SQLite: one AFTER trigger per operation updating the row by ROWID
//
// All three implement the same numeric rule as model.IsNumericID.
//
// Shadow columns are never dropped.
package shadow
