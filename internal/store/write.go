package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/mapping"
	"github.com/roach88/polyref/internal/model"
	"github.com/roach88/polyref/internal/schema"
)

// Save persists e, which must be an *entity.Record, in one transaction.
//
// New records get an id (the table's autoincrement for integer-kind types,
// a UUIDv7 for string-kind types saved without one) and a uuid. Every save
// writes a new revision row set for revisionable types. The record is
// updated only when the transaction commits.
func (s *Store) Save(ctx context.Context, e entity.Entity) error {
	rec, ok := e.(*entity.Record)
	if !ok {
		return fmt.Errorf("save %T: %w", e, entity.ErrUnsupportedEntity)
	}
	l, err := s.layoutOf(rec.EntityType)
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.EntityType, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: begin tx: %w", rec.EntityType, err)
	}
	defer tx.Rollback() // No-op if committed

	next := rec.Clone()
	w := &writer{store: s, tx: tx, l: l, rec: next}
	if err := w.save(ctx, rec.IsNew()); err != nil {
		return fmt.Errorf("save %s: %w", rec.EntityType, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save %s: commit: %w", rec.EntityType, err)
	}

	next.EnforceNew = false
	*rec = *next
	return nil
}

// Delete removes an entity with its revisions and field rows. It returns
// entity.ErrNotFound when the entity does not exist.
func (s *Store) Delete(ctx context.Context, typeID string, id model.TargetID) error {
	l, err := s.layoutOf(typeID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", typeID, err)
	}
	key, err := idArg(l.kind, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", l.et.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: begin tx: %w", l.et.ID, err)
	}
	defer tx.Rollback() // No-op if committed
	w := &writer{store: s, tx: tx, l: l}

	for _, ft := range l.dedicated {
		for _, table := range ft.Tables() {
			if _, err := w.exec(ctx, "DELETE FROM "+s.schema.PrefixTable(table)+" WHERE "+mapping.ColEntityID+" = ?", key); err != nil {
				return fmt.Errorf("delete %s %s: %w", l.et.ID, id, err)
			}
		}
	}
	names, _ := l.tableSpecs()
	var affected int64
	// Base table last.
	for i := len(names) - 1; i >= 0; i-- {
		res, err := w.exec(ctx, "DELETE FROM "+s.schema.PrefixTable(names[i])+" WHERE "+model.KeyID+" = ?", key)
		if err != nil {
			return fmt.Errorf("delete %s %s: %w", l.et.ID, id, err)
		}
		if names[i] == l.et.Base() {
			if affected, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("delete %s %s: %w", l.et.ID, id, err)
			}
		}
	}
	if affected == 0 {
		return fmt.Errorf("delete %s %s: %w", l.et.ID, id, entity.ErrNotFound)
	}
	return tx.Commit()
}

// writer runs the statements of one save.
type writer struct {
	store *Store
	tx    *sql.Tx
	l     layout
	rec   *entity.Record
}

func (w *writer) save(ctx context.Context, isNew bool) error {
	if w.rec.UUIDValue == "" {
		w.rec.UUIDValue = uuid.Must(uuid.NewV7()).String()
	}
	if isNew {
		if err := w.insertBase(ctx); err != nil {
			return err
		}
	} else if err := w.updateBase(ctx); err != nil {
		return err
	}

	key, err := idArg(w.l.kind, w.rec.Identifier)
	if err != nil {
		return err
	}
	if err := w.writeRevision(ctx, key); err != nil {
		return err
	}

	if _, err := w.exec(ctx, "UPDATE "+w.table(w.l.et.Base())+" SET "+model.KeyRevision+" = ? WHERE "+model.KeyID+" = ?",
		int64(w.rec.RevisionID), key); err != nil {
		return err
	}

	if w.l.separateData() {
		data := w.table(w.l.et.SharedTable())
		if _, err := w.exec(ctx, "DELETE FROM "+data+" WHERE "+model.KeyID+" = ?", key); err != nil {
			return err
		}
		cols := []string{model.KeyID, model.KeyRevision, model.KeyBundle, model.KeyLabel}
		vals := []any{key, int64(w.rec.RevisionID), w.rec.Bundle(), w.rec.Title}
		cols, vals = w.appendShared(cols, vals, false)
		if _, err := w.exec(ctx, insertSQL(data, cols), vals...); err != nil {
			return err
		}
	}

	for _, ft := range w.l.dedicated {
		if err := w.writeDedicated(ctx, ft, key); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) insertBase(ctx context.Context) error {
	base := w.table(w.l.et.Base())
	cols := []string{model.KeyUUID, model.KeyBundle}
	vals := []any{w.rec.UUIDValue, w.rec.Bundle()}
	if !w.l.separateData() {
		cols = append(cols, model.KeyLabel)
		vals = append(vals, w.rec.Title)
		cols, vals = w.appendShared(cols, vals, false)
	}

	if w.rec.Identifier.IsZero() {
		if w.l.kind == model.KindString {
			w.rec.Identifier = model.StringID(uuid.Must(uuid.NewV7()).String())
		} else {
			id, err := w.insertGenerated(ctx, base, model.KeyID, cols, vals)
			if err != nil {
				return err
			}
			w.rec.Identifier = model.IntID(id)
			return nil
		}
	}

	key, err := idArg(w.l.kind, w.rec.Identifier)
	if err != nil {
		return err
	}
	_, err = w.exec(ctx, insertSQL(base, append([]string{model.KeyID}, cols...)), append([]any{key}, vals...)...)
	return err
}

func (w *writer) updateBase(ctx context.Context) error {
	key, err := idArg(w.l.kind, w.rec.Identifier)
	if err != nil {
		return err
	}
	base := w.table(w.l.et.Base())

	var found int
	err = w.tx.QueryRowContext(ctx, w.rebind("SELECT COUNT(*) FROM "+base+" WHERE "+model.KeyID+" = ?"), key).Scan(&found)
	if err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("%s: %w", w.rec.Identifier, entity.ErrNotFound)
	}

	cols := []string{model.KeyUUID, model.KeyBundle}
	vals := []any{w.rec.UUIDValue, w.rec.Bundle()}
	if !w.l.separateData() {
		cols = append(cols, model.KeyLabel)
		vals = append(vals, w.rec.Title)
		cols, vals = w.appendShared(cols, vals, false)
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	_, err = w.exec(ctx, "UPDATE "+base+" SET "+strings.Join(sets, ", ")+" WHERE "+model.KeyID+" = ?", append(vals, key)...)
	return err
}

// writeRevision inserts the revision rows of revisionable types and sets
// the record's revision id. Other types count saves in RevisionID.
func (w *writer) writeRevision(ctx context.Context, key any) error {
	if !w.l.et.Revisionable {
		w.rec.RevisionID++
		return nil
	}

	rev := w.table(w.l.et.Revision())
	cols := []string{model.KeyID}
	vals := []any{key}
	if !w.l.separateRevisionData() {
		cols = append(cols, model.KeyLabel)
		vals = append(vals, w.rec.Title)
		cols, vals = w.appendShared(cols, vals, true)
	}
	revID, err := w.insertGenerated(ctx, rev, model.KeyRevision, cols, vals)
	if err != nil {
		return err
	}
	w.rec.RevisionID = revID

	if w.l.separateRevisionData() {
		cols := []string{model.KeyRevision, model.KeyID, model.KeyLabel}
		vals := []any{int64(revID), key, w.rec.Title}
		cols, vals = w.appendShared(cols, vals, true)
		if _, err := w.exec(ctx, insertSQL(w.table(w.l.et.SharedRevisionTable()), cols), vals...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeDedicated(ctx context.Context, ft mapping.FieldTables, key any) error {
	table := w.table(ft.Table)
	if _, err := w.exec(ctx, "DELETE FROM "+table+" WHERE "+mapping.ColEntityID+" = ?", key); err != nil {
		return err
	}

	cols := []string{
		mapping.ColBundle, mapping.ColDeleted, mapping.ColEntityID, mapping.ColRevisionID,
		mapping.ColLangcode, mapping.ColDelta, ft.Columns.TargetID, ft.Columns.TargetType,
	}
	tables := []string{table}
	if ft.RevisionTable != "" {
		tables = append(tables, w.table(ft.RevisionTable))
	}

	delta := 0
	for _, ref := range w.rec.Refs[ft.Field.Name] {
		if ref.IsEmpty() || ref.TargetID.IsNull() {
			continue
		}
		for _, t := range tables {
			_, err := w.exec(ctx, insertSQL(t, cols),
				w.rec.Bundle(), 0, key, int64(w.rec.RevisionID),
				LangcodeNotSpecified, delta, ref.TargetID.String(), ref.TargetType)
			if err != nil {
				return err
			}
		}
		delta++
	}
	return nil
}

// appendShared adds the shared reference columns and their values.
func (w *writer) appendShared(cols []string, vals []any, revision bool) ([]string, []any) {
	for _, ft := range w.l.sharedColumns(revision) {
		var id, typ any
		if refs := w.rec.Refs[ft.Field.Name]; len(refs) > 0 && !refs[0].IsEmpty() {
			id = refs[0].TargetID.Value()
			if refs[0].TargetType != "" {
				typ = refs[0].TargetType
			}
		}
		cols = append(cols, ft.Columns.TargetID, ft.Columns.TargetType)
		vals = append(vals, id, typ)
	}
	return cols, vals
}

// insertGenerated inserts a row and returns the generated key.
func (w *writer) insertGenerated(ctx context.Context, table, key string, cols []string, vals []any) (uint64, error) {
	q := insertSQL(table, cols)
	if w.store.dialect == schema.Postgres {
		var id int64
		if err := w.tx.QueryRowContext(ctx, w.rebind(q+" RETURNING "+key), vals...).Scan(&id); err != nil {
			return 0, err
		}
		return uint64(id), nil
	}
	res, err := w.exec(ctx, q, vals...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (w *writer) table(name string) string {
	return w.store.schema.PrefixTable(name)
}

func (w *writer) rebind(q string) string {
	return schema.Rebind(w.store.dialect, q)
}

func (w *writer) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return w.tx.ExecContext(ctx, w.rebind(q), args...)
}

func insertSQL(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

// idArg converts an entity id to a query argument for its identifier kind.
func idArg(kind model.IdentifierKind, id model.TargetID) (any, error) {
	if id.IsNull() {
		return nil, fmt.Errorf("null id")
	}
	if kind == model.KindString {
		return id.String(), nil
	}
	n, ok := id.Uint64()
	if !ok {
		return nil, fmt.Errorf("non-numeric id %q", id.String())
	}
	return int64(n), nil
}
