package ref

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

// Value is the explicit pair shape accepted by Item.SetValue. TargetID
// accepts anything model.ParseTargetID does.
type Value struct {
	TargetType string
	TargetID   any
	Entity     entity.Entity
}

// Item is one delta of a reference field.
type Item struct {
	field *Field

	targetType string
	targetID   model.TargetID

	// entity is the resolved handle. resolved distinguishes "not loaded
	// yet" from "loaded and not found" (resolved with a nil entity).
	entity   entity.Entity
	resolved bool
}

// TargetType returns the canonical target type.
func (it *Item) TargetType() string { return it.targetType }

// TargetID returns the target id; null for empty items and new entities.
func (it *Item) TargetID() model.TargetID { return it.targetID }

// Reference returns the persisted pair.
func (it *Item) Reference() model.Reference {
	return model.Reference{TargetType: it.targetType, TargetID: it.targetID}
}

// SetValue assigns the item from one of:
//   - nil, clearing the item
//   - an entity.Entity
//   - a scalar id (string, integer or model.TargetID) when the item already
//     has a target type or the field has a default type
//   - a Value or *Value pair, or a model.Reference
//
// On error the item is left unchanged.
func (it *Item) SetValue(v any) error {
	switch val := v.(type) {
	case nil:
		it.clear()
		return nil
	case entity.Entity:
		it.setEntity(val)
		return nil
	case Value:
		return it.setPair(val)
	case *Value:
		if val == nil {
			it.clear()
			return nil
		}
		return it.setPair(*val)
	case model.Reference:
		return it.setPair(Value{TargetType: val.TargetType, TargetID: val.TargetID})
	default:
		id, err := model.ParseTargetID(v)
		if err != nil {
			return invalid(ErrCodeUnsupportedValue, "", "", "%v", err)
		}
		if id.IsNull() {
			it.clear()
			return nil
		}
		targetType := it.contextType()
		if targetType == "" {
			return invalid(ErrCodeMissingTargetType, "", id.String(),
				"no entity type was provided, value is not a valid entity")
		}
		return it.setPair(Value{TargetType: targetType, TargetID: id})
	}
}

// contextType is the type a bare id refers to: the item's current type,
// else the field's default type.
func (it *Item) contextType() string {
	if it.targetType != "" {
		return it.targetType
	}
	return it.field.DefaultType()
}

func (it *Item) clear() {
	it.targetType = ""
	it.targetID = model.NullID()
	it.entity = nil
	it.resolved = false
}

func (it *Item) setEntity(e entity.Entity) {
	it.targetType = model.CanonicalTypeID(e.TypeID())
	if e.IsNew() {
		it.targetID = model.NullID()
	} else {
		it.targetID = e.ID()
	}
	it.entity = e
	it.resolved = true
}

func (it *Item) setPair(v Value) error {
	id, err := model.ParseTargetID(v.TargetID)
	if err != nil {
		return invalid(ErrCodeUnsupportedValue, v.TargetType, "", "%v", err)
	}
	targetType := model.CanonicalTypeID(v.TargetType)

	if v.Entity != nil {
		entityType := model.CanonicalTypeID(v.Entity.TypeID())
		if targetType != "" && targetType != entityType {
			return invalid(ErrCodeMismatch, targetType, id.String(),
				"the target type and entity passed to the reference item do not match (entity type %s)", entityType)
		}
		// A new entity has no id yet, so any placeholder id is accepted.
		if !v.Entity.IsNew() && !id.IsNull() && !id.Equal(v.Entity.ID()) {
			return invalid(ErrCodeMismatch, entityType, id.String(),
				"the target id and entity passed to the reference item do not match (entity id %s)", v.Entity.ID())
		}
		it.setEntity(v.Entity)
		return nil
	}

	if targetType == "" {
		if id.IsZero() {
			it.clear()
			return nil
		}
		targetType = it.contextType()
		if targetType == "" {
			return invalid(ErrCodeMissingTargetType, "", id.String(),
				"no entity type was provided, value is not a valid entity")
		}
	}

	if !id.IsZero() && it.field.Registry != nil {
		kind, err := it.field.Registry.IdentifierKind(targetType)
		// Unknown types are left to validation.
		if err == nil && kind == model.KindInteger && !model.IsNumericID(id.String()) {
			return invalid(ErrCodeNonNumericID, targetType, id.String(),
				"entity type %s uses integer ids", targetType)
		}
	}

	it.targetType = targetType
	it.targetID = id
	it.entity = nil
	it.resolved = false
	return nil
}

// Entity returns the referenced entity, loading it on first use. A nil
// entity with a nil error means the item is empty or the target does not
// exist. Storage errors other than not-found are returned and not cached.
func (it *Item) Entity(ctx context.Context) (entity.Entity, error) {
	if it.resolved {
		return it.entity, nil
	}
	if it.targetID.IsZero() || it.targetType == "" {
		return nil, nil
	}

	e, err := it.field.Storage.Load(ctx, it.targetType, it.targetID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("load %s: %w", it.Reference(), err)
	}
	it.entity = e
	it.resolved = true
	return it.entity, nil
}

// IsEmpty reports whether the item holds neither a complete pair nor an
// entity.
func (it *Item) IsEmpty() bool {
	if it.entity != nil {
		return false
	}
	return it.targetID.IsZero() || it.targetType == ""
}

// HasNewEntity reports whether the item holds an unsaved entity.
func (it *Item) HasNewEntity() bool {
	return it.targetID.IsNull() && it.entity != nil && it.entity.IsNew()
}

// PreSave saves a new referenced entity and copies its id and type back.
func (it *Item) PreSave(ctx context.Context) error {
	if it.HasNewEntity() {
		if err := it.field.Storage.Save(ctx, it.entity); err != nil {
			return fmt.Errorf("save referenced %s entity: %w", it.entity.TypeID(), err)
		}
	}
	if it.entity != nil && !it.entity.IsNew() {
		it.targetID = it.entity.ID()
		it.targetType = model.CanonicalTypeID(it.entity.TypeID())
	}
	return nil
}
