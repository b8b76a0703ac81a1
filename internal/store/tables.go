package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/schema"
)

// Column sizes of the entity tables.
const (
	stringIDLength = 128
	uuidLength     = 128
	bundleLength   = 32
	labelLength    = 255
	langcodeLength = 12
)

// LangcodeNotSpecified is written to the langcode column of dedicated
// field rows.
const LangcodeNotSpecified = "und"

// layout is the resolved storage of one entity type.
type layout struct {
	et   model.EntityType
	kind model.IdentifierKind

	// Reference fields stored in shared and dedicated tables, by name.
	shared    []mapping.FieldTables
	dedicated []mapping.FieldTables
}

func (s *Store) layoutOf(typeID string) (layout, error) {
	et, err := s.registry.EntityType(typeID)
	if err != nil {
		return layout{}, err
	}
	if !et.SQLStorage {
		return layout{}, fmt.Errorf("entity type %s: %w", et.ID, mapping.ErrUnmappedField)
	}
	fields, err := s.registry.FieldStorages(et.ID)
	if err != nil {
		return layout{}, err
	}

	l := layout{et: et, kind: et.IDKind}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fs := fields[name]
		if !fs.IsReference() {
			continue
		}
		ft, err := mapping.Resolve(et, fs)
		if errors.Is(err, mapping.ErrUnmappedField) {
			continue
		}
		if err != nil {
			return layout{}, err
		}
		if ft.Dedicated {
			l.dedicated = append(l.dedicated, ft)
		} else {
			l.shared = append(l.shared, ft)
		}
	}
	return l, nil
}

// separateData reports whether label and shared fields live in a data
// table rather than the base table.
func (l layout) separateData() bool {
	return l.et.SharedTable() != l.et.Base()
}

// separateRevisionData reports whether revision labels and shared fields
// live in a revision data table.
func (l layout) separateRevisionData() bool {
	return l.et.SharedRevisionTable() != l.et.Revision()
}

// sharedColumns returns the reference columns of the shared table, or of
// the shared revision table when revision is set.
func (l layout) sharedColumns(revision bool) []mapping.FieldTables {
	if !revision {
		return l.shared
	}
	var out []mapping.FieldTables
	for _, ft := range l.shared {
		if ft.RevisionTable != "" {
			out = append(out, ft)
		}
	}
	return out
}

func (l layout) idSpec(notNull bool) schema.ColumnSpec {
	if l.kind == model.KindString {
		return schema.ColumnSpec{Type: schema.TypeVarchar, Length: stringIDLength, NotNull: notNull}
	}
	return schema.ColumnSpec{Type: schema.TypeInt, NotNull: notNull}
}

func referenceColumns(ft mapping.FieldTables, notNull bool) []schema.Column {
	return []schema.Column{
		{Name: ft.Columns.TargetID, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: model.TargetIDLength, NotNull: notNull}},
		{Name: ft.Columns.TargetType, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: model.TargetTypeLength, NotNull: notNull}},
	}
}

func labelColumn() schema.Column {
	return schema.Column{Name: model.KeyLabel, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: labelLength}}
}

// tableSpecs returns the shared tables of the entity type in creation
// order, keyed by unprefixed name.
func (l layout) tableSpecs() ([]string, map[string]schema.TableSpec) {
	var names []string
	specs := map[string]schema.TableSpec{}
	add := func(name string, spec schema.TableSpec) {
		names = append(names, name)
		specs[name] = spec
	}

	base := schema.TableSpec{}
	if l.kind == model.KindString {
		base.Columns = append(base.Columns, schema.Column{Name: model.KeyID, Spec: l.idSpec(true)})
		base.PrimaryKey = []string{model.KeyID}
	} else {
		base.Columns = append(base.Columns, schema.Column{Name: model.KeyID, Spec: schema.ColumnSpec{Type: schema.TypeSerial}})
	}
	base.Columns = append(base.Columns,
		schema.Column{Name: model.KeyRevision, Spec: schema.ColumnSpec{Type: schema.TypeInt}},
		schema.Column{Name: model.KeyUUID, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: uuidLength, NotNull: true}},
		schema.Column{Name: model.KeyBundle, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: bundleLength, NotNull: true}},
	)
	if !l.separateData() {
		base.Columns = append(base.Columns, labelColumn())
		for _, ft := range l.shared {
			base.Columns = append(base.Columns, referenceColumns(ft, false)...)
		}
	}
	add(l.et.Base(), base)

	if l.separateData() {
		data := schema.TableSpec{
			Columns: []schema.Column{
				{Name: model.KeyID, Spec: l.idSpec(true)},
				{Name: model.KeyRevision, Spec: schema.ColumnSpec{Type: schema.TypeInt}},
				{Name: model.KeyBundle, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: bundleLength, NotNull: true}},
				labelColumn(),
			},
			PrimaryKey: []string{model.KeyID},
		}
		for _, ft := range l.shared {
			data.Columns = append(data.Columns, referenceColumns(ft, false)...)
		}
		add(l.et.SharedTable(), data)
	}

	if !l.et.Revisionable {
		return names, specs
	}

	rev := schema.TableSpec{Columns: []schema.Column{
		{Name: model.KeyRevision, Spec: schema.ColumnSpec{Type: schema.TypeSerial}},
		{Name: model.KeyID, Spec: l.idSpec(true)},
	}}
	if !l.separateRevisionData() {
		rev.Columns = append(rev.Columns, labelColumn())
		for _, ft := range l.sharedColumns(true) {
			rev.Columns = append(rev.Columns, referenceColumns(ft, false)...)
		}
	}
	add(l.et.Revision(), rev)

	if l.separateRevisionData() {
		revData := schema.TableSpec{
			Columns: []schema.Column{
				{Name: model.KeyRevision, Spec: schema.ColumnSpec{Type: schema.TypeInt, NotNull: true}},
				{Name: model.KeyID, Spec: l.idSpec(true)},
				labelColumn(),
			},
			PrimaryKey: []string{model.KeyRevision},
		}
		for _, ft := range l.sharedColumns(true) {
			revData.Columns = append(revData.Columns, referenceColumns(ft, false)...)
		}
		add(l.et.SharedRevisionTable(), revData)
	}
	return names, specs
}

// dedicatedSpec returns the table of a dedicated field, or of its
// revisions when revision is set.
func (l layout) dedicatedSpec(ft mapping.FieldTables, revision bool) schema.TableSpec {
	spec := schema.TableSpec{Columns: []schema.Column{
		{Name: mapping.ColBundle, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: bundleLength, NotNull: true, Default: "''"}},
		{Name: mapping.ColDeleted, Spec: schema.ColumnSpec{Type: schema.TypeBool, NotNull: true, Default: "0"}},
		{Name: mapping.ColEntityID, Spec: l.idSpec(true)},
		{Name: mapping.ColRevisionID, Spec: schema.ColumnSpec{Type: schema.TypeInt, NotNull: true}},
		{Name: mapping.ColLangcode, Spec: schema.ColumnSpec{Type: schema.TypeVarchar, Length: langcodeLength, NotNull: true, Default: "''"}},
		{Name: mapping.ColDelta, Spec: schema.ColumnSpec{Type: schema.TypeInt, NotNull: true}},
	}}
	spec.Columns = append(spec.Columns, referenceColumns(ft, true)...)
	if revision {
		spec.PrimaryKey = []string{mapping.ColEntityID, mapping.ColRevisionID, mapping.ColDeleted, mapping.ColDelta, mapping.ColLangcode}
	} else {
		spec.PrimaryKey = []string{mapping.ColEntityID, mapping.ColDeleted, mapping.ColDelta, mapping.ColLangcode}
	}
	return spec
}

// InstallEntityType registers et and its field storages, creates their
// tables and notifies listeners. Installing an existing type again
// creates missing tables only.
func (s *Store) InstallEntityType(ctx context.Context, et model.EntityType, fields ...model.FieldStorage) error {
	if err := s.registry.RegisterType(et); err != nil {
		return fmt.Errorf("install entity type: %w", err)
	}
	et.ID = model.CanonicalTypeID(et.ID)
	for _, fs := range fields {
		if fs.EntityTypeID == "" {
			fs.EntityTypeID = et.ID
		}
		if err := s.registry.RegisterField(fs); err != nil {
			return fmt.Errorf("install entity type %s: %w", et.ID, err)
		}
	}
	if !et.SQLStorage {
		slog.Debug("entity type without SQL storage", "entity_type", et.ID)
		return s.notify("entity type create", et.ID, func(sl SchemaListener) error {
			return sl.OnEntityTypeCreate(ctx, et)
		})
	}

	l, err := s.layoutOf(et.ID)
	if err != nil {
		return fmt.Errorf("install entity type %s: %w", et.ID, err)
	}
	names, specs := l.tableSpecs()
	for _, name := range names {
		if err := s.schema.CreateTable(ctx, name, specs[name]); err != nil {
			return fmt.Errorf("install entity type %s: %w", et.ID, err)
		}
	}
	for _, ft := range l.dedicated {
		if err := s.createDedicated(ctx, l, ft); err != nil {
			return fmt.Errorf("install entity type %s: %w", et.ID, err)
		}
	}
	slog.Info("installed entity type", "entity_type", et.ID, "tables", len(names))

	return s.notify("entity type create", et.ID, func(sl SchemaListener) error {
		return sl.OnEntityTypeCreate(ctx, et)
	})
}

// AddFieldStorage registers fs on an installed entity type, creates its
// columns or tables and notifies listeners.
func (s *Store) AddFieldStorage(ctx context.Context, fs model.FieldStorage) error {
	if err := s.registry.RegisterField(fs); err != nil {
		return fmt.Errorf("add field storage: %w", err)
	}
	fs.EntityTypeID = model.CanonicalTypeID(fs.EntityTypeID)

	if fs.IsReference() {
		if err := s.createFieldColumns(ctx, fs); err != nil {
			return fmt.Errorf("add field storage %s: %w", fs.Key(), err)
		}
	}
	return s.notify("field storage create", fs.Key(), func(sl SchemaListener) error {
		return sl.OnFieldStorageCreate(ctx, fs)
	})
}

func (s *Store) createFieldColumns(ctx context.Context, fs model.FieldStorage) error {
	l, err := s.layoutOf(fs.EntityTypeID)
	if errors.Is(err, mapping.ErrUnmappedField) {
		return nil
	}
	if err != nil {
		return err
	}
	ft, err := mapping.Resolve(l.et, fs)
	if errors.Is(err, mapping.ErrUnmappedField) {
		return nil
	}
	if err != nil {
		return err
	}
	if ft.Dedicated {
		return s.createDedicated(ctx, l, ft)
	}

	for _, table := range ft.Tables() {
		for _, col := range referenceColumns(ft, false) {
			exists, err := s.schema.FieldExists(ctx, table, col.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := s.schema.AddField(ctx, table, col.Name, col.Spec); err != nil && !schema.IsDuplicateObject(err) {
				return err
			}
		}
	}
	return nil
}

func (s *Store) createDedicated(ctx context.Context, l layout, ft mapping.FieldTables) error {
	if err := s.schema.CreateTable(ctx, ft.Table, l.dedicatedSpec(ft, false)); err != nil {
		return err
	}
	if ft.RevisionTable != "" {
		if err := s.schema.CreateTable(ctx, ft.RevisionTable, l.dedicatedSpec(ft, true)); err != nil {
			return err
		}
	}
	return nil
}
