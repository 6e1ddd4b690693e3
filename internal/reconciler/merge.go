package reconciler

import (
	"github.com/tablekeep/tablekeep/internal/model"
)

// Merge folds an authoritative poll snapshot into a fresh local cache.
// Rules, in order:
//   - a row the user is actively editing keeps its unsaved field buffer
//     but adopts the server's review flags and version; flags are never
//     held hostage by an in-progress text edit
//   - a quarantined flag value beats a snapshot that predates its commit
//     version; a snapshot at or past that version settles the claim
//   - everything else is replaced wholesale by server truth, and rows
//     missing from the snapshot are dropped
func Merge(s *Session, snapshot []model.Row) map[string]model.Row {
	cache := make(map[string]model.Row, len(snapshot))
	for _, serverRow := range snapshot {
		row := *serverRow.Clone()
		if draft, ok := s.Draft(row.ID); ok {
			row.Fields = draft.Clone()
		}
		for _, flag := range []string{model.FlagReviewed, model.FlagApproved} {
			claim, ok := s.claimedFlag(row.ID, flag)
			if !ok {
				continue
			}
			if serverRow.Version >= claim.Version {
				// the snapshot reflects (or supersedes) the pushed commit
				s.dropClaim(row.ID, flag)
				continue
			}
			row.ReviewFlags = row.ReviewFlags.With(flag, claim.Value)
			if claim.Version > row.Version {
				row.Version = claim.Version
			}
		}
		cache[row.ID] = row
	}
	return cache
}

// ApplyEvent folds one broadcast event into the cache. Events may arrive
// duplicated or, across different rows, out of order; every branch is
// idempotent and version-guarded.
func ApplyEvent(s *Session, cache map[string]model.Row, ev model.Event) {
	switch e := ev.(type) {
	case model.LockGranted:
		s.setRemoteLock(model.Lock{RowID: e.RowID, Holder: e.Holder, ExpiresAt: e.ExpiresAt})
	case model.LockReleased:
		s.clearRemoteLock(e.RowID)
	case model.LockExpired:
		s.clearRemoteLock(e.RowID)
	case model.FlagChanged:
		row, ok := cache[e.RowID]
		if !ok {
			return
		}
		if e.Version <= row.Version {
			return
		}
		row.ReviewFlags = row.ReviewFlags.With(e.Flag, e.Value)
		row.Version = e.Version
		cache[e.RowID] = row
		s.ClaimFlag(e.RowID, e.Flag, e.Value, e.Version)
	}
}
