package model

import "sort"

// TargetTypeSettings is the field-storage level allow/deny list of
// referenceable entity types plus optional per-type bundle restrictions.
type TargetTypeSettings struct {
	// Exclude selects deny-list mode: every registered type except
	// EntityTypeIDs is referenceable. When false, only EntityTypeIDs are.
	Exclude       bool     `json:"exclude_entity_types" yaml:"exclude_entity_types"`
	EntityTypeIDs []string `json:"entity_type_ids" yaml:"entity_type_ids"`

	// Bundles restricts the bundles that may be referenced per target type.
	// A missing key means no restriction; a present key with an empty list
	// forbids every bundle of that type.
	Bundles map[string][]string `json:"bundles,omitempty" yaml:"bundles,omitempty"`
}

// DefaultTargetTypeSettings allows every registered entity type.
func DefaultTargetTypeSettings() TargetTypeSettings {
	return TargetTypeSettings{Exclude: true}
}

// Resolve computes the referenceable entity types against the full registry.
// The result is sorted and contains canonical ids only.
func (s TargetTypeSettings) Resolve(all []string) []string {
	listed := make(map[string]bool, len(s.EntityTypeIDs))
	for _, id := range s.EntityTypeIDs {
		listed[CanonicalTypeID(id)] = true
	}

	resolved := make([]string, 0, len(all))
	for _, id := range all {
		id = CanonicalTypeID(id)
		if listed[id] != s.Exclude {
			resolved = append(resolved, id)
		}
	}
	sort.Strings(resolved)
	return resolved
}

// Allows reports whether typeID is referenceable given the full registry.
func (s TargetTypeSettings) Allows(typeID string, all []string) bool {
	typeID = CanonicalTypeID(typeID)
	for _, id := range s.Resolve(all) {
		if id == typeID {
			return true
		}
	}
	return false
}

// BundleRestriction returns the allowed bundles for typeID. The second
// result is false when no restriction is configured for the type.
func (s TargetTypeSettings) BundleRestriction(typeID string) ([]string, bool) {
	if s.Bundles == nil {
		return nil, false
	}
	bundles, ok := s.Bundles[CanonicalTypeID(typeID)]
	return bundles, ok
}
