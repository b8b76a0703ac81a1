package compiler

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
)

// ValidationError is one problem found in a set of registry definitions.
type ValidationError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
	Code    string `json:"code" yaml:"code"` // E1xx definition errors
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Error codes for definition validation.
const (
	ErrInvalidTypeID       = "E101"
	ErrDuplicateType       = "E102"
	ErrUnknownOwnerType    = "E103"
	ErrInvalidCardinality  = "E104"
	ErrUnknownTargetType   = "E105"
	ErrUnknownTargetBundle = "E106"
	ErrDuplicateField      = "E107"
	ErrInvalidFieldName    = "E108"
	ErrIdentifierTooLong   = "E109"
)

// MaxIdentifierLength is the longest table or column name accepted by every
// supported dialect.
const MaxIdentifierLength = 64

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks a complete registry: every entity type, every field and
// the cross references between them. Errors are sorted by field path.
func Validate(types []model.EntityType, fields []model.FieldStorage) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	known := make(map[string]model.EntityType, len(types))
	for _, et := range types {
		path := "entity_type." + et.ID
		if !identPattern.MatchString(et.ID) {
			add(path, ErrInvalidTypeID, "entity type id %q must match %s", et.ID, identPattern)
			continue
		}
		if _, dup := known[et.ID]; dup {
			add(path, ErrDuplicateType, "entity type %q defined more than once", et.ID)
			continue
		}
		known[et.ID] = et
		if len(et.ID) > model.TargetTypeLength {
			add(path, ErrIdentifierTooLong, "entity type id exceeds %d characters", model.TargetTypeLength)
		}
		for _, table := range []string{et.Base(), et.DataTable, et.Revision(), et.RevisionDataTable} {
			if len(table) > MaxIdentifierLength {
				add(path, ErrIdentifierTooLong, "table %q exceeds %d characters", table, MaxIdentifierLength)
			}
		}
	}

	seen := map[string]bool{}
	for _, fs := range fields {
		path := "entity_type." + fs.EntityTypeID + ".fields." + fs.Name
		if !identPattern.MatchString(fs.Name) {
			add(path, ErrInvalidFieldName, "field name %q must match %s", fs.Name, identPattern)
			continue
		}
		if seen[fs.Key()] {
			add(path, ErrDuplicateField, "field %q defined more than once", fs.Key())
			continue
		}
		seen[fs.Key()] = true

		owner, ok := known[fs.EntityTypeID]
		if !ok {
			add(path, ErrUnknownOwnerType, "owner entity type %q is not defined", fs.EntityTypeID)
			continue
		}
		if fs.Cardinality == 0 || fs.Cardinality < model.CardinalityUnlimited {
			add(path, ErrInvalidCardinality, "cardinality must be positive or %d, got %d", model.CardinalityUnlimited, fs.Cardinality)
		}
		if !fs.IsReference() {
			continue
		}
		if ft, err := mapping.Resolve(owner, fs); err == nil {
			for _, table := range ft.Tables() {
				if len(table) > MaxIdentifierLength {
					add(path, ErrIdentifierTooLong, "table %q exceeds %d characters", table, MaxIdentifierLength)
				}
			}
			if shadow := model.ShadowColumn(ft.Columns.TargetID); len(shadow) > MaxIdentifierLength {
				add(path, ErrIdentifierTooLong, "column %q exceeds %d characters", shadow, MaxIdentifierLength)
			}
		}

		for _, id := range fs.Settings.EntityTypeIDs {
			if _, ok := known[model.CanonicalTypeID(id)]; !ok {
				add(path+".settings.entity_type_ids", ErrUnknownTargetType, "entity type %q is not defined", id)
			}
		}
		for typeID, bundles := range fs.Settings.Bundles {
			target, ok := known[typeID]
			if !ok {
				add(path+".settings.bundles", ErrUnknownTargetType, "entity type %q is not defined", typeID)
				continue
			}
			for _, b := range bundles {
				if !target.HasBundle(b) {
					add(path+".settings.bundles", ErrUnknownTargetBundle, "entity type %q has no bundle %q", typeID, b)
				}
			}
		}
	}

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}
