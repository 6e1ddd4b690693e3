package service

import (
	"context"
	"reflect"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/lockmgr"
	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/pkg/timeutil"
	"github.com/tablekeep/tablekeep/internal/repo"
)

type RowService struct {
	rows  *repo.RowRepo
	pages *repo.PageRepo
	locks *lockmgr.Coordinator
	hub   *hub.Hub
}

func NewRowService(rows *repo.RowRepo, pages *repo.PageRepo, locks *lockmgr.Coordinator, h *hub.Hub) *RowService {
	return &RowService{rows: rows, pages: pages, locks: locks, hub: h}
}

func (s *RowService) Get(ctx context.Context, rowID string) (*model.Row, error) {
	return s.rows.GetByID(ctx, rowID)
}

// Snapshot is the poll fallback: the full authoritative state of a page,
// ordered by order_index.
func (s *RowService) Snapshot(ctx context.Context, pageID string) ([]model.Row, error) {
	if _, err := s.pages.GetByID(ctx, pageID); err != nil {
		return nil, err
	}
	return s.rows.ListByPage(ctx, pageID)
}

func (s *RowService) ListPages(ctx context.Context, documentID string) ([]model.Page, error) {
	return s.pages.ListByDocument(ctx, documentID)
}

type RowUpdateInput struct {
	Fields          model.FieldMap
	ReviewFlags     model.ReviewFlags
	ExpectedVersion int64
	Holder          string
}

// Update is the single CAS write path. The submitted fields map replaces
// the stored one wholesale and the flags object is applied as a pair.
// A field change requires that no other holder owns a live lock on the
// row; flag-only writes bypass the lock entirely and rely on the version
// guard.
func (s *RowService) Update(ctx context.Context, rowID string, in RowUpdateInput) (*model.Row, error) {
	if in.Holder == "" || in.ExpectedVersion < 1 {
		return nil, appErr.ErrInvalid
	}
	current, err := s.rows.GetByID(ctx, rowID)
	if err != nil {
		return nil, err
	}

	fields := in.Fields
	if fields == nil {
		fields = current.Fields
	}
	if !reflect.DeepEqual(fields, current.Fields) {
		if lock, ok := s.locks.Get(rowID); ok && lock.Holder != in.Holder {
			return nil, &appErr.LockHeldError{Holder: lock.Holder, ExpiresAt: lock.ExpiresAt}
		}
	}

	updated, err := s.rows.UpdateCAS(ctx, rowID, fields, in.ReviewFlags, in.ExpectedVersion, timeutil.NowUnix())
	if err != nil {
		return nil, err
	}

	topic := hub.Topic{DocumentID: updated.DocumentID, PageID: updated.PageID}
	if current.ReviewFlags.Reviewed != updated.ReviewFlags.Reviewed {
		s.hub.Publish(topic, model.FlagChanged{RowID: rowID, Flag: model.FlagReviewed, Value: updated.ReviewFlags.Reviewed, Version: updated.Version})
	}
	if current.ReviewFlags.Approved != updated.ReviewFlags.Approved {
		s.hub.Publish(topic, model.FlagChanged{RowID: rowID, Flag: model.FlagApproved, Value: updated.ReviewFlags.Approved, Version: updated.Version})
	}
	return updated, nil
}

type RowCreateInput struct {
	ID         string
	PageID     string
	OrderIndex *int
	Fields     model.FieldMap
}

// Create is the ingestion boundary: the pipeline that extracts line items
// from scanned pages calls this once per row.
func (s *RowService) Create(ctx context.Context, in RowCreateInput) (*model.Row, error) {
	if in.ID == "" || in.PageID == "" {
		return nil, appErr.ErrInvalid
	}
	page, err := s.pages.GetByID(ctx, in.PageID)
	if err != nil {
		return nil, err
	}
	orderIndex := 0
	if in.OrderIndex != nil {
		orderIndex = *in.OrderIndex
	} else {
		max, err := s.rows.MaxOrderIndex(ctx, in.PageID)
		if err != nil {
			return nil, err
		}
		orderIndex = max + 1
	}
	fields := in.Fields
	if fields == nil {
		fields = model.FieldMap{}
	}
	now := timeutil.NowUnix()
	row := &model.Row{
		ID:         in.ID,
		PageID:     page.ID,
		DocumentID: page.DocumentID,
		OrderIndex: orderIndex,
		Fields:     fields,
		Version:    1,
		State:      repo.RowStateNormal,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.rows.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes the row and releases any lock held on it. A live lock
// owned by someone else blocks the delete the same way it blocks a field
// edit.
func (s *RowService) Delete(ctx context.Context, rowID, holder string) error {
	if holder == "" {
		return appErr.ErrInvalid
	}
	row, err := s.rows.GetByID(ctx, rowID)
	if err != nil {
		return err
	}
	if lock, ok := s.locks.Get(rowID); ok && lock.Holder != holder {
		return &appErr.LockHeldError{Holder: lock.Holder, ExpiresAt: lock.ExpiresAt}
	}
	if err := s.rows.Delete(ctx, rowID, timeutil.NowUnix()); err != nil {
		return err
	}
	if lock, released := s.locks.Release(rowID, holder); released {
		s.hub.Publish(hub.Topic{DocumentID: lock.DocumentID, PageID: lock.PageID},
			model.LockReleased{RowID: rowID, Holder: holder})
	}
	logutil.GetLogger(ctx).Info("row deleted",
		zap.String("row_id", rowID), zap.String("page_id", row.PageID), zap.String("holder", holder))
	return nil
}
