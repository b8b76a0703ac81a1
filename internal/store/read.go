package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/queryir"
)

// Output names of entity queries.
const (
	colTargetID   = "target_id"
	colTargetType = "target_type"
)

func (s *Store) Load(ctx context.Context, typeID string, id model.TargetID) (entity.Entity, error) {
	found, err := s.LoadMultiple(ctx, typeID, []model.TargetID{id})
	if err != nil {
		return nil, err
	}
	e, ok := found[id.String()]
	if !ok || id.IsZero() {
		return nil, fmt.Errorf("load %s %s: %w", typeID, id, entity.ErrNotFound)
	}
	return e, nil
}

// LoadMultiple returns the entities found, keyed by id. Ids that cannot
// exist for the type's identifier kind are ignored.
func (s *Store) LoadMultiple(ctx context.Context, typeID string, ids []model.TargetID) (map[string]entity.Entity, error) {
	l, err := s.layoutOf(typeID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", typeID, err)
	}
	keys := make([]any, 0, len(ids))
	for _, id := range ids {
		if key, err := idArg(l.kind, id); err == nil {
			keys = append(keys, key)
		}
	}

	recs, err := s.loadWhere(ctx, l, queryir.In{Field: "b." + model.KeyID, Values: keys})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.et.ID, err)
	}
	out := make(map[string]entity.Entity, len(recs))
	for _, rec := range recs {
		out[rec.Identifier.String()] = rec
	}
	return out, nil
}

// LoadByUUID returns the entities found, keyed by uuid.
func (s *Store) LoadByUUID(ctx context.Context, typeID string, uuids []string) (map[string]entity.Entity, error) {
	l, err := s.layoutOf(typeID)
	if err != nil {
		return nil, fmt.Errorf("load %s by uuid: %w", typeID, err)
	}
	vals := make([]any, len(uuids))
	for i, u := range uuids {
		vals[i] = u
	}

	recs, err := s.loadWhere(ctx, l, queryir.In{Field: "b." + model.KeyUUID, Values: vals})
	if err != nil {
		return nil, fmt.Errorf("load %s by uuid: %w", l.et.ID, err)
	}
	out := make(map[string]entity.Entity, len(recs))
	for _, rec := range recs {
		out[rec.UUIDValue] = rec
	}
	return out, nil
}

// IDs returns the ids of every entity of typeID in key order.
func (s *Store) IDs(ctx context.Context, typeID string) ([]model.TargetID, error) {
	l, err := s.layoutOf(typeID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", typeID, err)
	}
	rows, err := s.rows(ctx, queryir.Select{
		From:     s.schema.PrefixTable(l.et.Base()),
		Alias:    "b",
		Bindings: map[string]string{"b." + model.KeyID: model.KeyID},
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.et.ID, err)
	}
	ids := make([]model.TargetID, len(rows))
	for i, row := range rows {
		ids[i] = model.StringID(row[model.KeyID].String)
	}
	return ids, nil
}

// LoadRevision returns an entity as it was saved in revisionID.
func (s *Store) LoadRevision(ctx context.Context, typeID string, revisionID uint64) (*entity.Record, error) {
	l, err := s.layoutOf(typeID)
	if err != nil {
		return nil, fmt.Errorf("load %s revision %d: %w", typeID, revisionID, err)
	}
	if !l.et.Revisionable {
		return nil, fmt.Errorf("load %s revision %d: entity type is not revisionable", l.et.ID, revisionID)
	}

	rev := queryir.Select{
		From:  s.schema.PrefixTable(l.et.Revision()),
		Alias: "r",
		Filter: queryir.Equals{
			Field: "r." + model.KeyRevision,
			Value: revisionID,
		},
		Bindings: map[string]string{
			"r." + model.KeyRevision: model.KeyRevision,
			"r." + model.KeyID:       model.KeyID,
		},
		Key: model.KeyRevision,
	}
	base := queryir.Select{
		From:  s.schema.PrefixTable(l.et.Base()),
		Alias: "b",
		Bindings: map[string]string{
			"b." + model.KeyUUID:   model.KeyUUID,
			"b." + model.KeyBundle: model.KeyBundle,
		},
	}
	var q queryir.Query
	if l.separateRevisionData() {
		data := queryir.Select{
			From:     s.schema.PrefixTable(l.et.SharedRevisionTable()),
			Alias:    "rd",
			Bindings: map[string]string{},
		}
		bindShared(&data, l.sharedColumns(true))
		q = queryir.Join{
			Left:  rev,
			Right: data,
			On:    queryir.FieldEquals{Left: "r." + model.KeyRevision, Right: "rd." + model.KeyRevision},
			Kind:  queryir.JoinInner,
		}
	} else {
		bindShared(&rev, l.sharedColumns(true))
		q = rev
	}
	q = queryir.Join{
		Left:  q,
		Right: base,
		On:    queryir.FieldEquals{Left: "r." + model.KeyID, Right: "b." + model.KeyID},
		Kind:  queryir.JoinInner,
	}

	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load %s revision %d: %w", l.et.ID, revisionID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("load %s revision %d: %w", l.et.ID, revisionID, entity.ErrNotFound)
	}
	rec := s.record(l, rows[0], true)

	for _, ft := range l.dedicated {
		if ft.RevisionTable == "" {
			continue
		}
		refs, err := s.fieldRows(ctx, ft, s.schema.PrefixTable(ft.RevisionTable), queryir.Equals{
			Field: "f." + mapping.ColRevisionID,
			Value: revisionID,
		})
		if err != nil {
			return nil, fmt.Errorf("load %s revision %d: %w", l.et.ID, revisionID, err)
		}
		if r := refs[rec.Identifier.String()]; len(r) > 0 {
			rec.Refs[ft.Field.Name] = r
		}
	}
	return rec, nil
}

// loadWhere loads the live records matching filter on the base table.
func (s *Store) loadWhere(ctx context.Context, l layout, filter queryir.Predicate) ([]*entity.Record, error) {
	base := queryir.Select{
		From:   s.schema.PrefixTable(l.et.Base()),
		Alias:  "b",
		Filter: filter,
		Bindings: map[string]string{
			"b." + model.KeyID:       model.KeyID,
			"b." + model.KeyUUID:     model.KeyUUID,
			"b." + model.KeyBundle:   model.KeyBundle,
			"b." + model.KeyRevision: model.KeyRevision,
		},
	}

	var q queryir.Query
	if l.separateData() {
		data := queryir.Select{
			From:     s.schema.PrefixTable(l.et.SharedTable()),
			Alias:    "d",
			Bindings: map[string]string{},
		}
		bindShared(&data, l.shared)
		q = queryir.Join{
			Left:  base,
			Right: data,
			On:    queryir.FieldEquals{Left: "b." + model.KeyID, Right: "d." + model.KeyID},
			Kind:  queryir.JoinLeft,
		}
	} else {
		bindShared(&base, l.shared)
		q = base
	}

	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, err
	}
	recs := make([]*entity.Record, 0, len(rows))
	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		rec := s.record(l, row, false)
		recs = append(recs, rec)
		key, err := idArg(l.kind, rec.Identifier)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(recs) == 0 {
		return recs, nil
	}

	for _, ft := range l.dedicated {
		refs, err := s.fieldRows(ctx, ft, s.schema.PrefixTable(ft.Table), queryir.In{
			Field:  "f." + mapping.ColEntityID,
			Values: keys,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if r := refs[rec.Identifier.String()]; len(r) > 0 {
				rec.Refs[ft.Field.Name] = r
			}
		}
	}
	return recs, nil
}

// bindShared adds the label and shared reference columns to sel.
func bindShared(sel *queryir.Select, shared []mapping.FieldTables) {
	a := sel.Name() + "."
	sel.Bindings[a+model.KeyLabel] = model.KeyLabel
	for _, ft := range shared {
		sel.Bindings[a+ft.Columns.TargetID] = ft.Columns.TargetID
		sel.Bindings[a+ft.Columns.TargetType] = ft.Columns.TargetType
	}
}

// fieldRows reads live rows of a dedicated field table, grouped by entity
// id in delta order.
func (s *Store) fieldRows(ctx context.Context, ft mapping.FieldTables, table string, filter queryir.Predicate) (map[string][]model.Reference, error) {
	q := queryir.Select{
		From:  table,
		Alias: "f",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			filter,
			queryir.Equals{Field: "f." + mapping.ColDeleted, Value: 0},
		}},
		Bindings: map[string]string{
			"f." + mapping.ColEntityID:   mapping.ColEntityID,
			"f." + mapping.ColDelta:      mapping.ColDelta,
			"f." + ft.Columns.TargetID:   colTargetID,
			"f." + ft.Columns.TargetType: colTargetType,
		},
		OrderBy: []string{"f." + mapping.ColEntityID, "f." + mapping.ColDelta},
	}
	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ft.Field.Key(), err)
	}

	out := map[string][]model.Reference{}
	for _, row := range rows {
		id := row[mapping.ColEntityID].String
		out[id] = append(out[id], model.Reference{
			TargetType: row[colTargetType].String,
			TargetID:   model.StringID(row[colTargetID].String),
		})
	}
	return out, nil
}

// record builds a Record from an entity row.
func (s *Store) record(l layout, row map[string]sql.NullString, revision bool) *entity.Record {
	rec := &entity.Record{
		EntityType: l.et.ID,
		Identifier: model.StringID(row[model.KeyID].String),
		UUIDValue:  row[model.KeyUUID].String,
		BundleName: row[model.KeyBundle].String,
		Title:      row[model.KeyLabel].String,
		Refs:       map[string][]model.Reference{},
	}
	if n, err := strconv.ParseUint(row[model.KeyRevision].String, 10, 64); err == nil {
		rec.RevisionID = n
	}
	for _, ft := range l.sharedColumns(revision) {
		id := row[ft.Columns.TargetID]
		if !id.Valid {
			continue
		}
		rec.Refs[ft.Field.Name] = []model.Reference{{
			TargetType: row[ft.Columns.TargetType].String,
			TargetID:   model.StringID(id.String),
		}}
	}
	return rec
}

// Query runs a compiled query and returns its rows keyed by output name.
// NULL columns are nil, everything else is returned as a string.
func (s *Store) Query(ctx context.Context, q queryir.Query) ([]map[string]any, error) {
	rows, err := s.rows(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			if v.Valid {
				m[k] = v.String
			} else {
				m[k] = nil
			}
		}
		out[i] = m
	}
	return out, nil
}

func (s *Store) rows(ctx context.Context, q queryir.Query) ([]map[string]sql.NullString, error) {
	query, args, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	var out []map[string]sql.NullString
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]sql.NullString, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
