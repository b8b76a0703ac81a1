package entity

import (
	"context"
	"errors"

	"github.com/roach88/polyref/internal/model"
)

var (
	// ErrNotFound is returned by Storage.Load when no entity has the id.
	ErrNotFound = errors.New("entity not found")

	// ErrUnknownType is returned for entity type ids missing from the registry.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrUnsupportedEntity is returned when a storage cannot persist the
	// concrete Entity implementation it was given.
	ErrUnsupportedEntity = errors.New("unsupported entity implementation")
)

// Entity is a loaded or new entity as seen by the reference layer.
type Entity interface {
	TypeID() string
	// ID returns the null TargetID while the entity is new.
	ID() model.TargetID
	UUID() string
	Bundle() string
	Label() string
	IsNew() bool
}

// Storage loads and saves entities of every registered type.
type Storage interface {
	// Load returns ErrNotFound when no entity of typeID has the id.
	Load(ctx context.Context, typeID string, id model.TargetID) (Entity, error)

	// LoadMultiple returns the entities found, keyed by their id string.
	// Missing ids are omitted.
	LoadMultiple(ctx context.Context, typeID string, ids []model.TargetID) (map[string]Entity, error)

	// LoadByUUID returns the entities found, keyed by uuid.
	LoadByUUID(ctx context.Context, typeID string, uuids []string) (map[string]Entity, error)

	// Save persists e and assigns its id when it is new.
	Save(ctx context.Context, e Entity) error
}

// Registry answers questions about registered entity types and field
// storages.
type Registry interface {
	EntityType(id string) (model.EntityType, error)
	IdentifierKind(id string) (model.IdentifierKind, error)

	// TypeIDs returns every registered type id, sorted.
	TypeIDs() []string

	// FieldStorages returns the field storages of an entity type keyed by
	// field name.
	FieldStorages(entityTypeID string) (map[string]model.FieldStorage, error)

	// FieldStoragesByType returns every field storage of the given field
	// type across all entity types, ordered by entity type then field.
	FieldStoragesByType(fieldType string) []model.FieldStorage
}
