package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/polyref/internal/model"
)

// CompileEntityType parses a CUE value into an entity type and its field
// storages. The entity type id is the last path selector of v:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity_type: node: { ... }`)
//	et, fields, err := CompileEntityType(v.LookupPath(cue.ParsePath("entity_type.node")))
func CompileEntityType(v cue.Value) (*model.EntityType, []model.FieldStorage, error) {
	if !v.Exists() {
		return nil, nil, &CompileError{Field: "entity_type", Message: "definition not found", Pos: v.Pos()}
	}
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}

	et := &model.EntityType{SQLStorage: true}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		et.ID = model.CanonicalTypeID(unquote(labels[len(labels)-1].String()))
	}

	var err error
	if et.Label, err = optString(v, "label", et.ID); err != nil {
		return nil, nil, err
	}
	kind, err := optString(v, "id_kind", model.KindInteger.String())
	if err != nil {
		return nil, nil, err
	}
	if et.IDKind, err = model.ParseIdentifierKind(kind); err != nil {
		return nil, nil, &CompileError{Field: "id_kind", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("id_kind")).Pos()}
	}
	for key, dst := range map[string]*string{
		"base_table":          &et.BaseTable,
		"data_table":          &et.DataTable,
		"revision_table":      &et.RevisionTable,
		"revision_data_table": &et.RevisionDataTable,
	} {
		if *dst, err = optString(v, key, ""); err != nil {
			return nil, nil, err
		}
	}
	if et.Revisionable, err = optBool(v, "revisionable", false); err != nil {
		return nil, nil, err
	}
	if et.SQLStorage, err = optBool(v, "sql_storage", true); err != nil {
		return nil, nil, err
	}
	if et.Bundles, err = optStrings(v, "bundles"); err != nil {
		return nil, nil, err
	}

	fields, err := parseFields(v, et.ID)
	if err != nil {
		return nil, nil, err
	}
	return et, fields, nil
}

// parseFields extracts field storage definitions in declaration order.
func parseFields(v cue.Value, entityTypeID string) ([]model.FieldStorage, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil // fields are optional
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []model.FieldStorage
	for iter.Next() {
		fs, err := parseField(iter.Value(), entityTypeID, iter.Selector().Unquoted())
		if err != nil {
			return nil, err
		}
		fields = append(fields, fs)
	}
	return fields, nil
}

func parseField(v cue.Value, entityTypeID, name string) (model.FieldStorage, error) {
	fs := model.FieldStorage{EntityTypeID: entityTypeID, Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return fs, &CompileError{Field: "fields.type", Message: fmt.Sprintf("field %s: type is required", name), Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return fs, formatCUEError(err)
	}
	fs.Type = typ

	cardinality := int64(1)
	if c := v.LookupPath(cue.ParsePath("cardinality")); c.Exists() {
		if cardinality, err = c.Int64(); err != nil {
			return fs, formatCUEError(err)
		}
	}
	fs.Cardinality = int(cardinality)

	if fs.Base, err = optBool(v, "base", false); err != nil {
		return fs, err
	}
	if fs.Revisionable, err = optBool(v, "revisionable", false); err != nil {
		return fs, err
	}
	if fs.CustomStorage, err = optBool(v, "custom_storage", false); err != nil {
		return fs, err
	}

	fs.Settings = model.DefaultTargetTypeSettings()
	if s := v.LookupPath(cue.ParsePath("settings")); s.Exists() {
		if fs.Settings, err = parseSettings(s); err != nil {
			return fs, err
		}
	}
	return fs, nil
}

func parseSettings(v cue.Value) (model.TargetTypeSettings, error) {
	settings := model.DefaultTargetTypeSettings()

	var err error
	if settings.Exclude, err = optBool(v, "exclude_entity_types", true); err != nil {
		return settings, err
	}
	if settings.EntityTypeIDs, err = optStrings(v, "entity_type_ids"); err != nil {
		return settings, err
	}

	bundlesVal := v.LookupPath(cue.ParsePath("bundles"))
	if !bundlesVal.Exists() {
		return settings, nil
	}
	bundles := map[string][]string{}
	if err := bundlesVal.Decode(&bundles); err != nil {
		return settings, &CompileError{Field: "settings.bundles", Message: "must map entity type ids to bundle lists", Pos: bundlesVal.Pos()}
	}
	settings.Bundles = make(map[string][]string, len(bundles))
	for typeID, list := range bundles {
		if list == nil {
			list = []string{}
		}
		settings.Bundles[model.CanonicalTypeID(typeID)] = list
	}
	return settings, nil
}

func optString(v cue.Value, key, def string) (string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return def, nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optBool(v cue.Value, key string, def bool) (bool, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return def, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optStrings(v cue.Value, key string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func unquote(label string) string {
	if len(label) >= 2 && label[0] == '"' && label[len(label)-1] == '"' {
		return label[1 : len(label)-1]
	}
	return label
}

// CompileError is a definition error with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
