package entity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/polyref/internal/model"
)

// MemoryRegistry is an in-process Registry. Type ids and the entity type
// ids of field storages are canonicalised on registration.
type MemoryRegistry struct {
	mu     sync.RWMutex
	types  map[string]model.EntityType
	fields map[string]map[string]model.FieldStorage
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		types:  map[string]model.EntityType{},
		fields: map[string]map[string]model.FieldStorage{},
	}
}

// RegisterType adds or replaces an entity type.
func (r *MemoryRegistry) RegisterType(et model.EntityType) error {
	et.ID = model.CanonicalTypeID(et.ID)
	if et.ID == "" {
		return fmt.Errorf("register entity type: empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[et.ID] = et
	if _, ok := r.fields[et.ID]; !ok {
		r.fields[et.ID] = map[string]model.FieldStorage{}
	}
	return nil
}

// RegisterField adds or replaces a field storage. The entity type must be
// registered first.
func (r *MemoryRegistry) RegisterField(fs model.FieldStorage) error {
	fs.EntityTypeID = model.CanonicalTypeID(fs.EntityTypeID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[fs.EntityTypeID]; !ok {
		return fmt.Errorf("register field %s: %w", fs.Key(), ErrUnknownType)
	}
	r.fields[fs.EntityTypeID][fs.Name] = fs
	return nil
}

func (r *MemoryRegistry) EntityType(id string) (model.EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	et, ok := r.types[model.CanonicalTypeID(id)]
	if !ok {
		return model.EntityType{}, fmt.Errorf("%w: %q", ErrUnknownType, id)
	}
	return et, nil
}

func (r *MemoryRegistry) IdentifierKind(id string) (model.IdentifierKind, error) {
	et, err := r.EntityType(id)
	if err != nil {
		return 0, err
	}
	return et.IDKind, nil
}

func (r *MemoryRegistry) TypeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *MemoryRegistry) FieldStorages(entityTypeID string) (map[string]model.FieldStorage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.fields[model.CanonicalTypeID(entityTypeID)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, entityTypeID)
	}
	out := make(map[string]model.FieldStorage, len(fields))
	for name, fs := range fields {
		out[name] = fs
	}
	return out, nil
}

func (r *MemoryRegistry) FieldStoragesByType(fieldType string) []model.FieldStorage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.FieldStorage
	for _, fields := range r.fields {
		for _, fs := range fields {
			if fs.Type == fieldType {
				out = append(out, fs)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityTypeID != out[j].EntityTypeID {
			return out[i].EntityTypeID < out[j].EntityTypeID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
