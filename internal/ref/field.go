package ref

import (
	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

// Field binds reference items to their collaborators and settings.
type Field struct {
	Registry entity.Registry
	Storage  entity.Storage
	Settings model.TargetTypeSettings
}

// NewField returns a Field for the given storage definition.
func NewField(r entity.Registry, s entity.Storage, settings model.TargetTypeSettings) *Field {
	return &Field{Registry: r, Storage: s, Settings: settings}
}

// NewItem returns an empty item of this field.
func (f *Field) NewItem() *Item {
	return &Item{field: f}
}

// NewList returns an empty item list of this field.
func (f *Field) NewList() *ItemList {
	return &ItemList{field: f}
}

// AllowedTypes resolves the settings against the registry.
func (f *Field) AllowedTypes() []string {
	return f.Settings.Resolve(f.Registry.TypeIDs())
}

// DefaultType returns the only allowed type, or "" when zero or several
// types are allowed. Bare scalar ids are accepted only with a default type.
func (f *Field) DefaultType() string {
	allowed := f.AllowedTypes()
	if len(allowed) == 1 {
		return allowed[0]
	}
	return ""
}
