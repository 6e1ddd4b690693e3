package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/tablekeep/tablekeep/internal/model"
	"github.com/tablekeep/tablekeep/internal/pkg/dbutil"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

const (
	PageStateNormal  = 1
	PageStateDeleted = 2
)

var pageColumns = []string{"id", "document_id", "page_no", "form_type", "state", "ctime", "mtime"}

type PageRepo struct {
	db *sql.DB
}

func NewPageRepo(db *sql.DB) *PageRepo {
	return &PageRepo{db: db}
}

func (r *PageRepo) Create(ctx context.Context, page *model.Page) error {
	data := map[string]interface{}{
		"id":          page.ID,
		"document_id": page.DocumentID,
		"page_no":     page.PageNo,
		"form_type":   page.FormType,
		"state":       page.State,
		"ctime":       page.Ctime,
		"mtime":       page.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("pages", []map[string]interface{}{data})
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

func (r *PageRepo) GetByID(ctx context.Context, pageID string) (*model.Page, error) {
	where := map[string]interface{}{
		"id":    pageID,
		"state": PageStateNormal,
	}
	sqlStr, args, err := builder.BuildSelect("pages", where, pageColumns)
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
	var page model.Page
	if err := rows.Scan(&page.ID, &page.DocumentID, &page.PageNo, &page.FormType, &page.State, &page.Ctime, &page.Mtime); err != nil {
		return nil, err
	}
	return &page, nil
}

func (r *PageRepo) ListByDocument(ctx context.Context, documentID string) ([]model.Page, error) {
	where := map[string]interface{}{
		"document_id": documentID,
		"state":       PageStateNormal,
		"_orderby":    "page_no asc",
	}
	sqlStr, args, err := builder.BuildSelect("pages", where, pageColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	pages := make([]model.Page, 0)
	for rows.Next() {
		var page model.Page
		if err := rows.Scan(&page.ID, &page.DocumentID, &page.PageNo, &page.FormType, &page.State, &page.Ctime, &page.Mtime); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
