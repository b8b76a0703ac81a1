package schema

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormSchema implements Schema on a *gorm.DB. Introspection goes through
// the gorm Migrator; DDL is issued as raw statements so the generated SQL is
// identical to SQLSchema's.
type GormSchema struct {
	db      *gorm.DB
	dialect Dialect
	prefix  string
}

// NewGormSchema returns a Schema for db. The dialect is taken from the
// gorm dialector.
func NewGormSchema(db *gorm.DB, prefix string) (*GormSchema, error) {
	d, err := ParseDialect(db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return &GormSchema{db: db, dialect: d, prefix: prefix}, nil
}

func (s *GormSchema) Dialect() Dialect { return s.dialect }

func (s *GormSchema) PrefixTable(table string) string { return s.prefix + table }

func (s *GormSchema) TableExists(ctx context.Context, table string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasTable(s.PrefixTable(table)), nil
}

func (s *GormSchema) FieldExists(ctx context.Context, table, column string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasColumn(s.PrefixTable(table), column), nil
}

func (s *GormSchema) IndexExists(ctx context.Context, table, name string) (bool, error) {
	prefixed := s.PrefixTable(table)
	return s.db.WithContext(ctx).Migrator().HasIndex(prefixed, s.dialect.IndexName(prefixed, name)), nil
}

// TriggerExists queries the engine catalog directly; the gorm Migrator has
// no notion of triggers.
func (s *GormSchema) TriggerExists(ctx context.Context, table, name string) (bool, error) {
	_, ok, err := s.TriggerDefinition(ctx, table, name)
	return ok, err
}

func (s *GormSchema) TriggerDefinition(ctx context.Context, table, name string) (string, bool, error) {
	q, args, err := triggerSQL(s.dialect, s.PrefixTable(table), name)
	if err != nil {
		return "", false, err
	}
	var found []string
	if err := s.db.WithContext(ctx).Raw(q, args...).Scan(&found).Error; err != nil {
		return "", false, fmt.Errorf("trigger definition %s: %w", name, err)
	}
	if len(found) == 0 {
		return "", false, nil
	}
	return found[0], true, nil
}

func (s *GormSchema) CreateTable(ctx context.Context, table string, spec TableSpec) error {
	q, err := createTableSQL(s.dialect, s.PrefixTable(table), spec)
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if err := s.db.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (s *GormSchema) AddField(ctx context.Context, table, column string, spec ColumnSpec) error {
	if ok, _ := s.TableExists(ctx, table); !ok {
		return fmt.Errorf("add field %s.%s: %w", table, column, ErrTableNotFound)
	}
	q, err := addFieldSQL(s.dialect, s.PrefixTable(table), column, spec)
	if err != nil {
		return fmt.Errorf("add field %s.%s: %w", table, column, err)
	}
	if err := s.db.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("add field %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *GormSchema) AddIndex(ctx context.Context, table, name string, fields []string) error {
	q, err := addIndexSQL(s.dialect, s.PrefixTable(table), name, fields)
	if err != nil {
		return fmt.Errorf("add index %s on %s: %w", name, table, err)
	}
	if err := s.db.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("add index %s on %s: %w", name, table, err)
	}
	return nil
}

func (s *GormSchema) Exec(ctx context.Context, query string, opts ExecOptions) error {
	if err := CheckDelimiter(query, opts); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec(query).Error; err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}
