package testutil

import (
	"context"
	"embed"
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/model"
)

//go:embed testdata/*.yaml
var fixtureFS embed.FS

// Fixture is a registry plus seed entities described in YAML.
type Fixture struct {
	EntityTypes []EntityTypeFixture `yaml:"entity_types"`
	Fields      []FieldFixture      `yaml:"fields"`
	Entities    []entity.Record     `yaml:"entities"`
}

// EntityTypeFixture is the YAML form of model.EntityType.
type EntityTypeFixture struct {
	ID                string   `yaml:"id"`
	Label             string   `yaml:"label"`
	IDKind            string   `yaml:"id_kind"`
	BaseTable         string   `yaml:"base_table"`
	DataTable         string   `yaml:"data_table"`
	RevisionTable     string   `yaml:"revision_table"`
	RevisionDataTable string   `yaml:"revision_data_table"`
	Revisionable      bool     `yaml:"revisionable"`
	Bundles           []string `yaml:"bundles"`
	NoSQLStorage      bool     `yaml:"no_sql_storage"`
}

// FieldFixture is the YAML form of model.FieldStorage. Missing settings
// allow every entity type; a missing cardinality means 1.
type FieldFixture struct {
	EntityType    string                    `yaml:"entity_type"`
	Name          string                    `yaml:"name"`
	Type          string                    `yaml:"type"`
	Cardinality   int                       `yaml:"cardinality"`
	Base          bool                      `yaml:"base"`
	Revisionable  bool                      `yaml:"revisionable"`
	CustomStorage bool                      `yaml:"custom_storage"`
	Settings      *model.TargetTypeSettings `yaml:"settings"`
}

// Installer creates storage for entity types and saves entities.
// *store.Store satisfies it.
type Installer interface {
	InstallEntityType(ctx context.Context, et model.EntityType, fields ...model.FieldStorage) error
	Save(ctx context.Context, e entity.Entity) error
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// OpenFixture reads an embedded fixture from testdata by file name.
func OpenFixture(name string) (*Fixture, error) {
	data, err := fixtureFS.ReadFile("testdata/" + name)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// LoadFixture is OpenFixture for tests.
func LoadFixture(t testing.TB, name string) *Fixture {
	t.Helper()
	f, err := OpenFixture(name)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// Types converts the entity type fixtures.
func (f *Fixture) Types() ([]model.EntityType, error) {
	types := make([]model.EntityType, 0, len(f.EntityTypes))
	for _, et := range f.EntityTypes {
		kind := model.KindInteger
		if et.IDKind != "" {
			var err error
			if kind, err = model.ParseIdentifierKind(et.IDKind); err != nil {
				return nil, fmt.Errorf("entity type %s: %w", et.ID, err)
			}
		}
		label := et.Label
		if label == "" {
			label = et.ID
		}
		types = append(types, model.EntityType{
			ID:                model.CanonicalTypeID(et.ID),
			Label:             label,
			IDKind:            kind,
			BaseTable:         et.BaseTable,
			DataTable:         et.DataTable,
			RevisionTable:     et.RevisionTable,
			RevisionDataTable: et.RevisionDataTable,
			Revisionable:      et.Revisionable,
			Bundles:           et.Bundles,
			SQLStorage:        !et.NoSQLStorage,
		})
	}
	return types, nil
}

// FieldStorages converts the field fixtures.
func (f *Fixture) FieldStorages() []model.FieldStorage {
	fields := make([]model.FieldStorage, 0, len(f.Fields))
	for _, ff := range f.Fields {
		fs := model.FieldStorage{
			EntityTypeID:  model.CanonicalTypeID(ff.EntityType),
			Name:          ff.Name,
			Type:          ff.Type,
			Cardinality:   ff.Cardinality,
			Base:          ff.Base,
			Revisionable:  ff.Revisionable,
			CustomStorage: ff.CustomStorage,
			Settings:      model.DefaultTargetTypeSettings(),
		}
		if fs.Type == "" {
			fs.Type = model.FieldTypeReference
		}
		if fs.Cardinality == 0 {
			fs.Cardinality = 1
		}
		if ff.Settings != nil {
			fs.Settings = *ff.Settings
		}
		fields = append(fields, fs)
	}
	return fields
}

// Seed installs every entity type with its fields, then saves the entities
// in order. Entities carrying an id are created with that id.
func (f *Fixture) Seed(ctx context.Context, in Installer) ([]*entity.Record, error) {
	types, err := f.Types()
	if err != nil {
		return nil, err
	}
	byOwner := map[string][]model.FieldStorage{}
	for _, fs := range f.FieldStorages() {
		byOwner[fs.EntityTypeID] = append(byOwner[fs.EntityTypeID], fs)
	}
	for _, et := range types {
		if err := in.InstallEntityType(ctx, et, byOwner[et.ID]...); err != nil {
			return nil, fmt.Errorf("install %s: %w", et.ID, err)
		}
	}

	saved := make([]*entity.Record, 0, len(f.Entities))
	for i := range f.Entities {
		rec := f.Entities[i].Clone()
		rec.EntityType = model.CanonicalTypeID(rec.EntityType)
		rec.EnforceNew = !rec.Identifier.IsZero()
		if err := in.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("seed entity %d (%s): %w", i, rec.EntityType, err)
		}
		saved = append(saved, rec)
	}
	return saved, nil
}
