// Package schema is the schema introspection and DDL contract used by the
// shadow column strategy and the store.
//
// Table names given to a Schema are unprefixed; implementations apply the
// configured table prefix. Identifiers are never quoted. They are checked
// against ^[A-Za-z0-9_.]+$ instead, which every supported engine accepts
// unquoted.
//
// Two implementations are provided:
//   - SQLSchema: database/sql for SQLite (mattn or modernc), MySQL and Postgres
//   - GormSchema: a *gorm.DB, introspecting through the gorm Migrator
//
// DDL errors caused by a concurrent migration creating the same object are
// recognised by IsDuplicateObject for every engine.
package schema
