// Package mapping resolves where a field's values are stored: the physical
// tables and columns for shared, dedicated and revision storage.
//
// Table names are unprefixed.
package mapping

import (
	"errors"
	"fmt"

	"github.com/roach88/polyref/internal/model"
)

// ErrUnmappedField is returned for fields that have no SQL storage: custom
// storage fields and fields of entity types without SQL storage.
var ErrUnmappedField = errors.New("field has no table mapping")

// Columns of every dedicated field table besides the property columns.
const (
	ColBundle     = "bundle"
	ColDeleted    = "deleted"
	ColEntityID   = "entity_id"
	ColRevisionID = "revision_id"
	ColLangcode   = "langcode"
	ColDelta      = "delta"
)

// Pair names the target id and target type columns of a reference field
// in one table.
type Pair struct {
	TargetID   string
	TargetType string
}

// FieldTables is the storage of one field.
type FieldTables struct {
	Field     model.FieldStorage
	Dedicated bool

	// Table holds live values; RevisionTable is "" unless both the entity
	// type and the field are revisionable.
	Table         string
	RevisionTable string

	Columns Pair
}

// Tables returns the live table followed by the revision table, if any.
func (ft FieldTables) Tables() []string {
	if ft.RevisionTable == "" {
		return []string{ft.Table}
	}
	return []string{ft.Table, ft.RevisionTable}
}

// AllowsSharedStorage reports whether the field's values fit in the entity
// type's shared tables: single-value base fields without custom storage.
func AllowsSharedStorage(fs model.FieldStorage) bool {
	return !fs.CustomStorage && fs.Base && !fs.IsMultiple()
}

// RequiresDedicatedStorage reports whether the field needs its own table:
// configurable or multi-value fields without custom storage.
func RequiresDedicatedStorage(fs model.FieldStorage) bool {
	return !fs.CustomStorage && (!fs.Base || fs.IsMultiple())
}

// DedicatedTable returns "{entity_type}__{field}".
func DedicatedTable(et model.EntityType, fs model.FieldStorage) string {
	return et.ID + "__" + fs.Name
}

// DedicatedRevisionTable returns "{entity_type}_revision__{field}".
func DedicatedRevisionTable(et model.EntityType, fs model.FieldStorage) string {
	return et.ID + "_revision__" + fs.Name
}

// ColumnName returns the column storing property of fs: "{field}__{property}"
// in shared tables and "{field}_{property}" in dedicated tables.
func ColumnName(fs model.FieldStorage, property string) string {
	if RequiresDedicatedStorage(fs) {
		return fs.Name + "_" + property
	}
	return fs.Name + "__" + property
}

// ReferenceColumns returns the target id and type columns of fs.
func ReferenceColumns(fs model.FieldStorage) Pair {
	return Pair{
		TargetID:   ColumnName(fs, model.PropertyTargetID),
		TargetType: ColumnName(fs, model.PropertyTargetType),
	}
}

// Resolve returns the storage of fs on et.
func Resolve(et model.EntityType, fs model.FieldStorage) (FieldTables, error) {
	if !et.SQLStorage {
		return FieldTables{}, fmt.Errorf("%s: entity type %s has no SQL storage: %w", fs.Key(), et.ID, ErrUnmappedField)
	}
	if fs.CustomStorage {
		return FieldTables{}, fmt.Errorf("%s: custom storage: %w", fs.Key(), ErrUnmappedField)
	}

	ft := FieldTables{Field: fs, Columns: ReferenceColumns(fs)}
	revisionable := et.Revisionable && fs.Revisionable

	if RequiresDedicatedStorage(fs) {
		ft.Dedicated = true
		ft.Table = DedicatedTable(et, fs)
		if revisionable {
			ft.RevisionTable = DedicatedRevisionTable(et, fs)
		}
		return ft, nil
	}

	ft.Table = et.SharedTable()
	if revisionable {
		ft.RevisionTable = et.SharedRevisionTable()
	}
	return ft, nil
}
