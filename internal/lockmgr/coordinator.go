package lockmgr

import (
	"sort"
	"sync"
	"time"

	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

// Coordinator is the in-process lock table for row edits. A lock past its
// expiry is treated as absent by every operation; expired entries are also
// reaped by SweepExpired so subscribers can be told about them.
type Coordinator struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]model.Lock
	now   func() time.Time
}

func New(ttl time.Duration) *Coordinator {
	return &Coordinator{
		ttl:   ttl,
		locks: make(map[string]model.Lock),
		now:   time.Now,
	}
}

// Acquire grants the lock when the row is free, already held by the same
// holder (re-acquire refreshes the expiry), or held by an expired lock.
// A live foreign lock fails with LockHeldError.
func (c *Coordinator) Acquire(rowID, pageID, documentID, holder string) (model.Lock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if existing, ok := c.locks[rowID]; ok && existing.ExpiresAt > now.Unix() && existing.Holder != holder {
		return model.Lock{}, &appErr.LockHeldError{Holder: existing.Holder, ExpiresAt: existing.ExpiresAt}
	}
	lock := model.Lock{
		RowID:      rowID,
		PageID:     pageID,
		DocumentID: documentID,
		Holder:     holder,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(c.ttl).Unix(),
	}
	c.locks[rowID] = lock
	return lock, nil
}

// Release removes the holder's live lock and reports whether anything was
// removed. A missing, expired or foreign lock is a no-op: release is
// idempotent so save-then-unlock flows tolerate server-side expiry.
func (c *Coordinator) Release(rowID, holder string) (model.Lock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.locks[rowID]
	if !ok {
		return model.Lock{}, false
	}
	if existing.ExpiresAt <= c.now().Unix() {
		delete(c.locks, rowID)
		return model.Lock{}, false
	}
	if existing.Holder != holder {
		return model.Lock{}, false
	}
	delete(c.locks, rowID)
	return existing, true
}

// ReleaseAll drops every live lock owned by holder and returns them,
// sorted by row id for deterministic event emission.
func (c *Coordinator) ReleaseAll(holder string) []model.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().Unix()
	released := make([]model.Lock, 0)
	for rowID, lock := range c.locks {
		if lock.ExpiresAt <= now {
			delete(c.locks, rowID)
			continue
		}
		if lock.Holder == holder {
			delete(c.locks, rowID)
			released = append(released, lock)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i].RowID < released[j].RowID })
	return released
}

// ReleaseAllOnPage drops the holder's live locks on one page only. Used
// for subscription-drop cleanup, where the same holder may still be
// working other pages through other connections.
func (c *Coordinator) ReleaseAllOnPage(holder, pageID string) []model.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().Unix()
	released := make([]model.Lock, 0)
	for rowID, lock := range c.locks {
		if lock.ExpiresAt <= now {
			delete(c.locks, rowID)
			continue
		}
		if lock.Holder == holder && lock.PageID == pageID {
			delete(c.locks, rowID)
			released = append(released, lock)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i].RowID < released[j].RowID })
	return released
}

// Get returns the live lock for a row, if any.
func (c *Coordinator) Get(rowID string) (model.Lock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[rowID]
	if !ok || lock.ExpiresAt <= c.now().Unix() {
		return model.Lock{}, false
	}
	return lock, true
}

// HeldBy reports whether holder owns a live lock on the row.
func (c *Coordinator) HeldBy(rowID, holder string) bool {
	lock, ok := c.Get(rowID)
	return ok && lock.Holder == holder
}

// SweepExpired reaps every expired entry and returns them so the caller
// can broadcast LockExpired events.
func (c *Coordinator) SweepExpired() []model.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().Unix()
	expired := make([]model.Lock, 0)
	for rowID, lock := range c.locks {
		if lock.ExpiresAt <= now {
			delete(c.locks, rowID)
			expired = append(expired, lock)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].RowID < expired[j].RowID })
	return expired
}
