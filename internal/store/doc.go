// Package store is a SQL entity store for the reference layer.
//
// It creates the tables of registered entity types following
// internal/mapping:
//   - base table: id, revision_id, uuid, bundle
//   - data table (or the base table when there is none): label and the
//     columns of single-value base fields
//   - revision and revision data tables for revisionable types
//   - one dedicated table (and revision table) per multi-value or
//     configurable field
//
// Schema changes are announced to SchemaListener implementations after the
// tables exist, so a listener can add shadow columns to them.
//
// # Database Configuration
//
// Open configures SQLite with:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Connect opens MySQL or Postgres servers as well; Postgres goes through
// gorm so schema introspection can use its migrator.
package store
