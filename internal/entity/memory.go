package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/polyref/internal/model"
)

// MemoryStorage is an in-process Storage for Record entities.
//
// Integer-kind types get sequential ids starting at 1. String-kind types get
// a UUIDv7 string id when saved without one.
type MemoryStorage struct {
	registry Registry

	mu      sync.RWMutex
	records map[string]map[string]*Record
	serial  map[string]uint64
	loads   int
}

// NewMemoryStorage returns an empty storage backed by r for identifier kinds.
func NewMemoryStorage(r Registry) *MemoryStorage {
	return &MemoryStorage{
		registry: r,
		records:  map[string]map[string]*Record{},
		serial:   map[string]uint64{},
	}
}

// Loads reports how many Load and LoadMultiple calls were served.
func (s *MemoryStorage) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

func (s *MemoryStorage) Load(ctx context.Context, typeID string, id model.TargetID) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++

	rec, ok := s.records[model.CanonicalTypeID(typeID)][id.String()]
	if !ok || id.IsZero() {
		return nil, fmt.Errorf("load %s %s: %w", typeID, id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *MemoryStorage) LoadMultiple(ctx context.Context, typeID string, ids []model.TargetID) (map[string]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++

	byID := s.records[model.CanonicalTypeID(typeID)]
	out := make(map[string]Entity, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id.String()]; ok {
			out[id.String()] = rec.Clone()
		}
	}
	return out, nil
}

func (s *MemoryStorage) LoadByUUID(ctx context.Context, typeID string, uuids []string) (map[string]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(uuids))
	for _, u := range uuids {
		want[u] = true
	}
	out := make(map[string]Entity, len(uuids))
	for _, rec := range s.records[model.CanonicalTypeID(typeID)] {
		if want[rec.UUIDValue] {
			out[rec.UUIDValue] = rec.Clone()
		}
	}
	return out, nil
}

// Save stores a copy of e, which must be a *Record. New records get an id,
// a uuid and revision 1; saved records get their revision incremented.
func (s *MemoryStorage) Save(ctx context.Context, e Entity) error {
	rec, ok := e.(*Record)
	if !ok {
		return fmt.Errorf("save %T: %w", e, ErrUnsupportedEntity)
	}
	kind, err := s.registry.IdentifierKind(rec.EntityType)
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.EntityType, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Identifier.IsZero() {
		switch kind {
		case model.KindInteger:
			s.serial[rec.EntityType]++
			rec.Identifier = model.IntID(s.serial[rec.EntityType])
		default:
			rec.Identifier = model.StringID(uuid.Must(uuid.NewV7()).String())
		}
	} else if kind == model.KindInteger {
		n, ok := rec.Identifier.Uint64()
		if !ok {
			return fmt.Errorf("save %s: non-numeric id %q", rec.EntityType, rec.Identifier)
		}
		if n > s.serial[rec.EntityType] {
			s.serial[rec.EntityType] = n
		}
	}
	if rec.UUIDValue == "" {
		rec.UUIDValue = uuid.Must(uuid.NewV7()).String()
	}
	rec.RevisionID++
	rec.EnforceNew = false

	if s.records[rec.EntityType] == nil {
		s.records[rec.EntityType] = map[string]*Record{}
	}
	s.records[rec.EntityType][rec.Identifier.String()] = rec.Clone()
	return nil
}

// Delete removes an entity. Missing entities are ignored.
func (s *MemoryStorage) Delete(ctx context.Context, typeID string, id model.TargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[model.CanonicalTypeID(typeID)], id.String())
}
