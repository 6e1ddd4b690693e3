package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/lockmgr"
	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/repo"
)

type LockService struct {
	rows  *repo.RowRepo
	locks *lockmgr.Coordinator
	hub   *hub.Hub
}

func NewLockService(rows *repo.RowRepo, locks *lockmgr.Coordinator, h *hub.Hub) *LockService {
	return &LockService{rows: rows, locks: locks, hub: h}
}

func (s *LockService) Acquire(ctx context.Context, rowID, holder string) (model.Lock, error) {
	if holder == "" {
		return model.Lock{}, appErr.ErrInvalid
	}
	row, err := s.rows.GetByID(ctx, rowID)
	if err != nil {
		return model.Lock{}, err
	}
	lock, err := s.locks.Acquire(rowID, row.PageID, row.DocumentID, holder)
	if err != nil {
		return model.Lock{}, err
	}
	s.hub.Publish(hub.Topic{DocumentID: lock.DocumentID, PageID: lock.PageID},
		model.LockGranted{RowID: rowID, Holder: holder, ExpiresAt: lock.ExpiresAt})
	return lock, nil
}

// Release always succeeds; a lock that is absent, already expired or owned
// by someone else is left alone and no event is published.
func (s *LockService) Release(ctx context.Context, rowID, holder string) {
	lock, released := s.locks.Release(rowID, holder)
	if !released {
		logutil.GetLogger(ctx).Debug("release of absent or foreign lock ignored",
			zap.String("row_id", rowID), zap.String("holder", holder))
		return
	}
	s.hub.Publish(hub.Topic{DocumentID: lock.DocumentID, PageID: lock.PageID},
		model.LockReleased{RowID: rowID, Holder: holder})
}

func (s *LockService) ReleaseAll(ctx context.Context, holder string) int {
	released := s.locks.ReleaseAll(holder)
	for _, lock := range released {
		s.hub.Publish(hub.Topic{DocumentID: lock.DocumentID, PageID: lock.PageID},
			model.LockReleased{RowID: lock.RowID, Holder: holder})
	}
	if len(released) > 0 {
		logutil.GetLogger(ctx).Info("released all locks",
			zap.String("holder", holder), zap.Int("count", len(released)))
	}
	return len(released)
}

// ReleasePage frees the holder's locks on one page, for subscription-drop
// cleanup. Locks the holder still uses on other pages are untouched; the
// explicit release-all endpoint remains the tab-close path.
func (s *LockService) ReleasePage(ctx context.Context, holder, documentID, pageID string) int {
	released := s.locks.ReleaseAllOnPage(holder, pageID)
	topic := hub.Topic{DocumentID: documentID, PageID: pageID}
	for _, lock := range released {
		s.hub.Publish(topic, model.LockReleased{RowID: lock.RowID, Holder: holder})
	}
	if len(released) > 0 {
		logutil.GetLogger(ctx).Info("released page locks on disconnect",
			zap.String("holder", holder), zap.String("page_id", pageID), zap.Int("count", len(released)))
	}
	return len(released)
}

// ExpireStale reaps expired locks and notifies subscribers. Driven by the
// cron sweeper; lazy expiry in the coordinator already keeps the
// operations correct without it.
func (s *LockService) ExpireStale(ctx context.Context) int {
	expired := s.locks.SweepExpired()
	for _, lock := range expired {
		s.hub.Publish(hub.Topic{DocumentID: lock.DocumentID, PageID: lock.PageID},
			model.LockExpired{RowID: lock.RowID, Holder: lock.Holder})
	}
	if len(expired) > 0 {
		logutil.GetLogger(ctx).Info("expired stale locks", zap.Int("count", len(expired)))
	}
	return len(expired)
}
