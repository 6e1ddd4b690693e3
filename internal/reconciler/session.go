package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tablekeep/tablekeep/internal/model"
)

const defaultQuarantineSize = 256

type flagClaim struct {
	Value   bool
	Version int64
}

// Session is the explicit mutable state of one editing session: which rows
// the user is actively editing (with their unsaved field buffers), which
// rows remote holders have locked, and the quarantine of flag values
// pushed over the broadcast channel that a stale poll snapshot must not
// revert. Keeping it a value passed into Merge keeps the merge itself
// deterministic and testable.
type Session struct {
	mu          sync.Mutex
	drafts      map[string]model.FieldMap
	remoteLocks map[string]model.Lock
	quarantine  *expirable.LRU[string, flagClaim]
}

// NewSession builds a session whose quarantine window is quarantineTTL:
// past it, a broadcast flag value is no longer trusted over poll state
// even if no snapshot ever confirmed it.
func NewSession(quarantineTTL time.Duration) *Session {
	return &Session{
		drafts:      make(map[string]model.FieldMap),
		remoteLocks: make(map[string]model.Lock),
		quarantine:  expirable.NewLRU[string, flagClaim](defaultQuarantineSize, nil, quarantineTTL),
	}
}

func claimKey(rowID, flag string) string {
	return fmt.Sprintf("%s/%s", rowID, flag)
}

// StartEditing marks the row as actively edited and seeds the unsaved
// buffer. Merge keeps these fields over server state until StopEditing.
func (s *Session) StartEditing(rowID string, buffer model.FieldMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[rowID] = buffer.Clone()
}

func (s *Session) UpdateDraft(rowID string, buffer model.FieldMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[rowID]; ok {
		s.drafts[rowID] = buffer.Clone()
	}
}

func (s *Session) StopEditing(rowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, rowID)
}

func (s *Session) Draft(rowID string) (model.FieldMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[rowID]
	return draft, ok
}

func (s *Session) Editing(rowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[rowID]
	return ok
}

// ClaimFlag records a flag value learned over the broadcast channel (or
// from our own commit) so stale poll responses cannot visually revert it.
func (s *Session) ClaimFlag(rowID, flag string, value bool, version int64) {
	s.quarantine.Add(claimKey(rowID, flag), flagClaim{Value: value, Version: version})
}

func (s *Session) claimedFlag(rowID, flag string) (flagClaim, bool) {
	return s.quarantine.Get(claimKey(rowID, flag))
}

func (s *Session) dropClaim(rowID, flag string) {
	s.quarantine.Remove(claimKey(rowID, flag))
}

// RemoteLockHolder reports who holds a row according to received lock
// events, for display only; the server remains the enforcer.
func (s *Session) RemoteLockHolder(rowID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.remoteLocks[rowID]
	if !ok {
		return "", false
	}
	return lock.Holder, true
}

func (s *Session) setRemoteLock(lock model.Lock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteLocks[lock.RowID] = lock
}

func (s *Session) clearRemoteLock(rowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remoteLocks, rowID)
}
