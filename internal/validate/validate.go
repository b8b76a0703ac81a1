// Package validate checks reference items against their field settings.
//
// Violations are data: Validate returns every violation found instead of
// failing on the first one. Errors are reserved for storage failures.
package validate

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/ref"
)

// ViolationCode categorizes validation violations.
type ViolationCode string

const (
	// CodeDisallowedTargetType: the target type is not referenceable.
	CodeDisallowedTargetType ViolationCode = "DISALLOWED_TARGET_TYPE"

	// CodeDanglingReference: the target does not exist.
	CodeDanglingReference ViolationCode = "DANGLING_REFERENCE"

	// CodeDisallowedBundle: the target's bundle is not referenceable.
	CodeDisallowedBundle ViolationCode = "DISALLOWED_BUNDLE"
)

// Violation describes one problem with one item.
type Violation struct {
	Code       ViolationCode `json:"code" yaml:"code"`
	Delta      int           `json:"delta" yaml:"delta"`
	TargetType string        `json:"target_type" yaml:"target_type"`
	TargetID   string        `json:"target_id" yaml:"target_id"`
	Message    string        `json:"message" yaml:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%d]: %s", v.Code, v.Delta, v.Message)
}

// Validator validates items against a registry of entity types.
type Validator struct {
	registry entity.Registry
}

// New returns a Validator resolving allow-lists against r.
func New(r entity.Registry) *Validator {
	return &Validator{registry: r}
}

// Validate returns the violations of a single item. Delta is 0.
//
// Rules, in order:
//  1. No id with a referenceable type is an empty reference. Ids "" and "0"
//     count as no id.
//  2. The type must be referenceable.
//  3. The target must exist.
//  4. The target's bundle must be allowed when a restriction is configured
//     for its type.
//
// A failing rule stops the checks after it.
func (v *Validator) Validate(ctx context.Context, it *ref.Item, settings model.TargetTypeSettings) ([]Violation, error) {
	allowed := settings.Resolve(v.registry.TypeIDs())
	return v.validate(ctx, 0, it, settings, allowed)
}

// ValidateList validates every item of l, recording each violation's delta.
func (v *Validator) ValidateList(ctx context.Context, l *ref.ItemList, settings model.TargetTypeSettings) ([]Violation, error) {
	allowed := settings.Resolve(v.registry.TypeIDs())
	var out []Violation
	for delta, it := range l.Items() {
		vs, err := v.validate(ctx, delta, it, settings, allowed)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func (v *Validator) validate(ctx context.Context, delta int, it *ref.Item, settings model.TargetTypeSettings, allowed []string) ([]Violation, error) {
	targetType := it.TargetType()
	id := it.TargetID()

	if targetType == "" && id.IsZero() && !it.HasNewEntity() {
		return nil, nil
	}

	violation := func(code ViolationCode, msg string) []Violation {
		return []Violation{{
			Code:       code,
			Delta:      delta,
			TargetType: targetType,
			TargetID:   id.String(),
			Message:    msg,
		}}
	}

	if !slices.Contains(allowed, targetType) {
		return violation(CodeDisallowedTargetType,
			fmt.Sprintf("The entity type %s is not valid.", targetType)), nil
	}

	if isEmptyID(id) && !it.HasNewEntity() {
		return nil, nil
	}

	e, err := it.Entity(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate delta %d: %w", delta, err)
	}
	if e == nil {
		return violation(CodeDanglingReference,
			fmt.Sprintf("The referenced entity (%s: %s) does not exist.", targetType, id)), nil
	}

	if bundles, ok := settings.BundleRestriction(targetType); ok && !slices.Contains(bundles, e.Bundle()) {
		return violation(CodeDisallowedBundle,
			fmt.Sprintf("The referenced entity (%s: %s) has bundle %s, which is not allowed.", targetType, id, e.Bundle())), nil
	}

	return nil, nil
}

func isEmptyID(id model.TargetID) bool {
	return id.IsZero() || id.String() == "0"
}
