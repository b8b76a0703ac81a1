// Package entity defines the host collaborators the reference layer depends
// on: the entity type registry and entity storage.
//
// Components receive these through their constructors. Nothing in this
// module resolves a registry or storage from global state.
//
// MemoryRegistry and MemoryStorage are complete in-process implementations
// used by the CLI when no database is configured and by tests. The SQL
// backed storage lives in internal/store.
package entity
