package model

import "fmt"

// FieldTypeReference is the field type id of a polymorphic reference field.
const FieldTypeReference = "dynamic_entity_reference"

// CardinalityUnlimited marks a multi-value field without an upper bound.
const CardinalityUnlimited = -1

// Reference field properties. Each property maps to one physical column.
const (
	PropertyTargetID   = "target_id"
	PropertyTargetType = "target_type"
)

// Column size limits for the reference columns.
const (
	TargetIDLength   = 255
	TargetTypeLength = 32
)

// ShadowSuffix is appended to a target id column to name its integer shadow.
const ShadowSuffix = "_int"

// ShadowColumn returns the name of the integer shadow column for column.
func ShadowColumn(column string) string {
	return column + ShadowSuffix
}

// IdentifierKind describes how an entity type identifies its rows.
type IdentifierKind int

const (
	// KindInteger identifies rows with unsigned integers.
	KindInteger IdentifierKind = iota
	// KindString identifies rows with opaque strings.
	KindString
)

// String implements fmt.Stringer.
func (k IdentifierKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("IdentifierKind(%d)", int(k))
	}
}

// ParseIdentifierKind converts "integer" or "string" to an IdentifierKind.
func ParseIdentifierKind(s string) (IdentifierKind, error) {
	switch s {
	case "integer", "int":
		return KindInteger, nil
	case "string":
		return KindString, nil
	default:
		return 0, fmt.Errorf("unknown identifier kind %q", s)
	}
}

// EntityType describes an entity type known to the host registry.
//
// Table names are unprefixed; the schema layer applies any configured prefix.
type EntityType struct {
	ID     string
	Label  string
	IDKind IdentifierKind

	// BaseTable holds one row per entity. Defaults to ID.
	BaseTable string
	// DataTable holds the shared field columns when set (translatable types).
	DataTable string
	// RevisionTable holds one row per revision for revisionable types.
	RevisionTable string
	// RevisionDataTable holds shared field columns per revision when set.
	RevisionDataTable string

	Revisionable bool
	Bundles      []string

	// SQLStorage is false for entity types whose storage is not backed by
	// relational tables (config-like types). They never get shadow columns.
	SQLStorage bool
}

// Entity key columns shared by every SQL-backed entity type.
const (
	KeyID       = "id"
	KeyRevision = "revision_id"
	KeyBundle   = "bundle"
	KeyUUID     = "uuid"
	KeyLabel    = "label"
)

// Base returns the base table name, falling back to the type id.
func (t EntityType) Base() string {
	if t.BaseTable != "" {
		return t.BaseTable
	}
	return t.ID
}

// SharedTable returns the table holding shared field columns.
func (t EntityType) SharedTable() string {
	if t.DataTable != "" {
		return t.DataTable
	}
	return t.Base()
}

// Revision returns the revision table name, or "" when not revisionable.
func (t EntityType) Revision() string {
	if !t.Revisionable {
		return ""
	}
	if t.RevisionTable != "" {
		return t.RevisionTable
	}
	return t.ID + "_revision"
}

// SharedRevisionTable returns the revision table holding shared field columns.
func (t EntityType) SharedRevisionTable() string {
	if !t.Revisionable {
		return ""
	}
	if t.RevisionDataTable != "" {
		return t.RevisionDataTable
	}
	return t.Revision()
}

// HasBundle reports whether bundle is declared for the type. Types without
// declared bundles use their id as the only bundle.
func (t EntityType) HasBundle(bundle string) bool {
	if len(t.Bundles) == 0 {
		return bundle == t.ID
	}
	for _, b := range t.Bundles {
		if b == bundle {
			return true
		}
	}
	return false
}

// FieldStorage describes the storage of one field on one entity type.
type FieldStorage struct {
	EntityTypeID string
	Name         string
	Type         string

	// Cardinality is 1 for single-value fields, N for bounded multi-value
	// fields and CardinalityUnlimited for unbounded ones.
	Cardinality int

	Revisionable bool

	// Base marks fields defined by the entity type itself. Only base
	// single-value fields may live in shared tables.
	Base bool

	// CustomStorage marks fields whose values are not stored by the host.
	CustomStorage bool

	Settings TargetTypeSettings
}

// IsReference reports whether the field is a polymorphic reference field.
func (f FieldStorage) IsReference() bool {
	return f.Type == FieldTypeReference
}

// IsMultiple reports whether the field can hold more than one item.
func (f FieldStorage) IsMultiple() bool {
	return f.Cardinality != 1
}

// Key returns "entity_type.field" for use in logs and maps.
func (f FieldStorage) Key() string {
	return f.EntityTypeID + "." + f.Name
}

// Reference is the persisted (target_type, target_id) pair.
type Reference struct {
	TargetType string   `json:"target_type" yaml:"target_type"`
	TargetID   TargetID `json:"target_id" yaml:"target_id"`
}

// IsEmpty reports whether the reference carries no target id.
func (r Reference) IsEmpty() bool {
	return r.TargetID.IsZero()
}

// String renders the pair as "type:id".
func (r Reference) String() string {
	return r.TargetType + ":" + r.TargetID.String()
}
