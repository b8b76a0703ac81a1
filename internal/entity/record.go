package entity

import "github.com/roach88/polyref/internal/model"

// Record is the concrete entity used by MemoryStorage and internal/store.
// Reference field values are kept in Refs keyed by field name, one
// model.Reference per delta.
type Record struct {
	EntityType string                       `json:"entity_type" yaml:"entity_type"`
	Identifier model.TargetID               `json:"id" yaml:"id"`
	UUIDValue  string                       `json:"uuid" yaml:"uuid"`
	BundleName string                       `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Title      string                       `json:"label,omitempty" yaml:"label,omitempty"`
	RevisionID uint64                       `json:"revision_id,omitempty" yaml:"revision_id,omitempty"`
	Refs       map[string][]model.Reference `json:"refs,omitempty" yaml:"refs,omitempty"`

	// EnforceNew keeps the record new even when it already carries an id,
	// for entities created with a caller-chosen id.
	EnforceNew bool `json:"-" yaml:"-"`
}

// NewRecord returns a new, unsaved record.
func NewRecord(typeID, bundle, label string) *Record {
	return &Record{
		EntityType: model.CanonicalTypeID(typeID),
		BundleName: bundle,
		Title:      label,
		Refs:       map[string][]model.Reference{},
	}
}

func (r *Record) TypeID() string     { return r.EntityType }
func (r *Record) ID() model.TargetID { return r.Identifier }
func (r *Record) UUID() string       { return r.UUIDValue }
func (r *Record) Label() string      { return r.Title }

// Bundle returns the bundle, falling back to the entity type id.
func (r *Record) Bundle() string {
	if r.BundleName == "" {
		return r.EntityType
	}
	return r.BundleName
}

// IsNew reports whether the record has not been saved yet.
func (r *Record) IsNew() bool {
	return r.EnforceNew || r.Identifier.IsZero()
}

// SetRefs replaces the values of a reference field.
func (r *Record) SetRefs(field string, refs []model.Reference) {
	if r.Refs == nil {
		r.Refs = map[string][]model.Reference{}
	}
	r.Refs[field] = append([]model.Reference(nil), refs...)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Refs = make(map[string][]model.Reference, len(r.Refs))
	for k, v := range r.Refs {
		c.Refs[k] = append([]model.Reference(nil), v...)
	}
	return &c
}
