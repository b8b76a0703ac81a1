// Package ref implements the reference field value: a (target_type,
// target_id) pair plus a lazily resolved entity handle.
//
// An Item keeps three representations in sync. Setting an entity derives
// the type and id; setting the id invalidates the cached entity. The
// entity is loaded at most once per identifying pair, including when the
// load finds nothing.
//
// Item and ItemList are not safe for concurrent use.
package ref
