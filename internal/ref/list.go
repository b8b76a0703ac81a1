package ref

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

// ItemList holds the items of a multi-value reference field, indexed by
// delta.
type ItemList struct {
	field *Field
	items []*Item
}

// DefaultValue is a portable default authored by uuid instead of id.
// When TargetUUID is empty, TargetID is used as is.
type DefaultValue struct {
	TargetType string         `json:"target_type" yaml:"target_type"`
	TargetUUID string         `json:"target_uuid,omitempty" yaml:"target_uuid,omitempty"`
	TargetID   model.TargetID `json:"target_id,omitempty" yaml:"target_id,omitempty"`
}

func (l *ItemList) Len() int { return len(l.items) }

// Get returns the item at delta, or nil when out of range.
func (l *ItemList) Get(delta int) *Item {
	if delta < 0 || delta >= len(l.items) {
		return nil
	}
	return l.items[delta]
}

// Items returns the items in delta order.
func (l *ItemList) Items() []*Item {
	return l.items
}

// Append adds an item built from v; see Item.SetValue.
func (l *ItemList) Append(v any) error {
	it := l.field.NewItem()
	if err := it.SetValue(v); err != nil {
		return fmt.Errorf("delta %d: %w", len(l.items), err)
	}
	l.items = append(l.items, it)
	return nil
}

// SetValues replaces all items. Nothing changes on error.
func (l *ItemList) SetValues(values []any) error {
	items := make([]*Item, 0, len(values))
	for delta, v := range values {
		it := l.field.NewItem()
		if err := it.SetValue(v); err != nil {
			return fmt.Errorf("delta %d: %w", delta, err)
		}
		items = append(items, it)
	}
	l.items = items
	return nil
}

// SetReferences replaces all items with stored pairs.
func (l *ItemList) SetReferences(refs []model.Reference) error {
	values := make([]any, len(refs))
	for i, r := range refs {
		values[i] = r
	}
	return l.SetValues(values)
}

// FilterEmpty removes empty items and renumbers deltas.
func (l *ItemList) FilterEmpty() {
	kept := l.items[:0]
	for _, it := range l.items {
		if !it.IsEmpty() {
			kept = append(kept, it)
		}
	}
	l.items = kept
}

// References returns the stored pairs of the non-empty items.
func (l *ItemList) References() []model.Reference {
	out := make([]model.Reference, 0, len(l.items))
	for _, it := range l.items {
		if !it.IsEmpty() {
			out = append(out, it.Reference())
		}
	}
	return out
}

// ReferencedEntities returns the referenced entities in delta order.
// New entities are returned as is. Existing ones are loaded with one
// LoadMultiple per target type; ids that do not resolve are omitted.
func (l *ItemList) ReferencedEntities(ctx context.Context) ([]entity.Entity, error) {
	found := map[int]entity.Entity{}
	byType := map[string]map[int]model.TargetID{}
	var types []string

	for delta, it := range l.items {
		switch {
		case it.HasNewEntity():
			found[delta] = it.entity
		case !it.targetID.IsZero() && it.targetType != "":
			if byType[it.targetType] == nil {
				byType[it.targetType] = map[int]model.TargetID{}
				types = append(types, it.targetType)
			}
			byType[it.targetType][delta] = it.targetID
		}
	}

	for _, targetType := range types {
		deltas := byType[targetType]
		seen := map[string]bool{}
		ids := make([]model.TargetID, 0, len(deltas))
		for _, delta := range sortedDeltas(deltas) {
			id := deltas[delta]
			if !seen[id.String()] {
				seen[id.String()] = true
				ids = append(ids, id)
			}
		}

		loaded, err := l.field.Storage.LoadMultiple(ctx, targetType, ids)
		if err != nil {
			return nil, fmt.Errorf("load %s entities: %w", targetType, err)
		}
		for delta, id := range deltas {
			if e, ok := loaded[id.String()]; ok {
				found[delta] = e
			}
		}
	}

	out := make([]entity.Entity, 0, len(found))
	for _, delta := range sortedDeltas(found) {
		out = append(out, found[delta])
	}
	return out, nil
}

// PreSave runs Item.PreSave on every item.
func (l *ItemList) PreSave(ctx context.Context) error {
	for delta, it := range l.items {
		if err := it.PreSave(ctx); err != nil {
			return fmt.Errorf("delta %d: %w", delta, err)
		}
	}
	return nil
}

// ProcessDefaultValue replaces the items with defaults, converting uuids to
// ids with one LoadByUUID per target type. Defaults whose uuid does not
// resolve are dropped and the remaining deltas renumbered.
func (l *ItemList) ProcessDefaultValue(ctx context.Context, defaults []DefaultValue) error {
	uuids := map[string][]string{}
	var types []string
	for _, d := range defaults {
		if d.TargetUUID == "" {
			continue
		}
		t := model.CanonicalTypeID(d.TargetType)
		if _, ok := uuids[t]; !ok {
			types = append(types, t)
		}
		uuids[t] = append(uuids[t], d.TargetUUID)
	}

	resolved := map[string]map[string]entity.Entity{}
	for _, t := range types {
		loaded, err := l.field.Storage.LoadByUUID(ctx, t, uuids[t])
		if err != nil {
			return fmt.Errorf("resolve %s default values: %w", t, err)
		}
		resolved[t] = loaded
	}

	values := make([]any, 0, len(defaults))
	for _, d := range defaults {
		t := model.CanonicalTypeID(d.TargetType)
		if d.TargetUUID == "" {
			values = append(values, Value{TargetType: t, TargetID: d.TargetID})
			continue
		}
		e, ok := resolved[t][d.TargetUUID]
		if !ok {
			continue
		}
		values = append(values, Value{TargetType: t, TargetID: e.ID()})
	}
	return l.SetValues(values)
}

// DefaultValueUUIDs converts the items to portable uuid defaults. Items
// whose target cannot be loaded are skipped.
func (l *ItemList) DefaultValueUUIDs(ctx context.Context) ([]DefaultValue, error) {
	entities, err := l.ReferencedEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DefaultValue, 0, len(entities))
	for _, e := range entities {
		out = append(out, DefaultValue{
			TargetType: model.CanonicalTypeID(e.TypeID()),
			TargetUUID: e.UUID(),
		})
	}
	return out, nil
}

func sortedDeltas[V any](m map[int]V) []int {
	deltas := make([]int, 0, len(m))
	for d := range m {
		deltas = append(deltas, d)
	}
	sort.Ints(deltas)
	return deltas
}
