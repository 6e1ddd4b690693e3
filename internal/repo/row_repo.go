package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/tablekeep/tablekeep/internal/model"
	"github.com/tablekeep/tablekeep/internal/pkg/dbutil"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

const (
	RowStateNormal  = 1
	RowStateDeleted = 2
)

var rowColumns = []string{"id", "page_id", "document_id", "order_index", "fields", "reviewed", "approved", "version", "state", "ctime", "mtime"}

type RowRepo struct {
	db *sql.DB
}

func NewRowRepo(db *sql.DB) *RowRepo {
	return &RowRepo{db: db}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func scanRow(rows *sql.Rows) (*model.Row, error) {
	var row model.Row
	var fieldsRaw []byte
	var reviewed, approved int
	if err := rows.Scan(&row.ID, &row.PageID, &row.DocumentID, &row.OrderIndex, &fieldsRaw, &reviewed, &approved, &row.Version, &row.State, &row.Ctime, &row.Mtime); err != nil {
		return nil, err
	}
	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &row.Fields); err != nil {
			return nil, err
		}
	}
	if row.Fields == nil {
		row.Fields = model.FieldMap{}
	}
	row.ReviewFlags = model.ReviewFlags{Reviewed: reviewed == 1, Approved: approved == 1}
	return &row, nil
}

func (r *RowRepo) Create(ctx context.Context, row *model.Row) error {
	fieldsRaw, err := json.Marshal(row.Fields)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          row.ID,
		"page_id":     row.PageID,
		"document_id": row.DocumentID,
		"order_index": row.OrderIndex,
		"fields":      string(fieldsRaw),
		"reviewed":    boolToInt(row.ReviewFlags.Reviewed),
		"approved":    boolToInt(row.ReviewFlags.Approved),
		"version":     row.Version,
		"state":       row.State,
		"ctime":       row.Ctime,
		"mtime":       row.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("line_items", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil && dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *RowRepo) GetByID(ctx context.Context, rowID string) (*model.Row, error) {
	where := map[string]interface{}{
		"id":    rowID,
		"state": RowStateNormal,
	}
	sqlStr, args, err := builder.BuildSelect("line_items", where, rowColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanRow(rows)
}

func (r *RowRepo) ListByPage(ctx context.Context, pageID string) ([]model.Row, error) {
	where := map[string]interface{}{
		"page_id":  pageID,
		"state":    RowStateNormal,
		"_orderby": "order_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("line_items", where, rowColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	items := make([]model.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *row)
	}
	return items, rows.Err()
}

// UpdateCAS replaces the row's fields and flags iff the stored version
// still equals expectedVersion, bumping the version by exactly one. When
// the guard misses it re-reads the row to tell a conflict (returned with
// the authoritative row attached) from a deleted/missing row.
func (r *RowRepo) UpdateCAS(ctx context.Context, rowID string, fields model.FieldMap, flags model.ReviewFlags, expectedVersion, mtime int64) (*model.Row, error) {
	fieldsRaw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	where := map[string]interface{}{
		"id":      rowID,
		"version": expectedVersion,
		"state":   RowStateNormal,
	}
	update := map[string]interface{}{
		"fields":   string(fieldsRaw),
		"reviewed": boolToInt(flags.Reviewed),
		"approved": boolToInt(flags.Approved),
		"version":  expectedVersion + 1,
		"mtime":    mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("line_items", where, update)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, getErr := r.GetByID(ctx, rowID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &appErr.VersionConflictError{Current: current}
	}
	return r.GetByID(ctx, rowID)
}

func (r *RowRepo) Delete(ctx context.Context, rowID string, mtime int64) error {
	where := map[string]interface{}{
		"id":    rowID,
		"state": RowStateNormal,
	}
	update := map[string]interface{}{
		"state": RowStateDeleted,
		"mtime": mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("line_items", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *RowRepo) MaxOrderIndex(ctx context.Context, pageID string) (int, error) {
	sqlStr, args := dbutil.Finalize("SELECT COALESCE(MAX(order_index), 0) FROM line_items WHERE page_id = ? AND state = ?", []interface{}{pageID, RowStateNormal})
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}
