package reconciler

import (
	"context"
	"fmt"

	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

// Store is the slice of the server API the toggle protocol needs. The
// HTTP client implements it; tests substitute an in-memory fake.
type Store interface {
	FetchRow(ctx context.Context, rowID string) (*model.Row, error)
	// UpdateRow submits the whole fields map plus both flags under a
	// version guard; a stale guard fails with VersionConflictError
	// carrying the authoritative row.
	UpdateRow(ctx context.Context, rowID string, fields model.FieldMap, flags model.ReviewFlags, expectedVersion int64) (*model.Row, error)
}

// after the first conflict, re-fetch and resubmit at most this many times
const maxToggleRetries = 2

type FlagToggler struct {
	store   Store
	session *Session
}

func NewFlagToggler(store Store, session *Session) *FlagToggler {
	return &FlagToggler{store: store, session: session}
}

// Toggle drives one flag change through the retry protocol, mutating
// cache along the way: optimistic value while submitting, committed row
// on success, last server-confirmed state on terminal failure. It never
// submits a blind CAS; each attempt fetches the freshest row first so the
// untouched flag's value always comes from the server, not client memory.
func (t *FlagToggler) Toggle(ctx context.Context, cache map[string]model.Row, rowID, flag string, value bool) error {
	before, hasLocal := cache[rowID]
	if hasLocal {
		optimistic := *before.Clone()
		optimistic.ReviewFlags = optimistic.ReviewFlags.With(flag, value)
		cache[rowID] = optimistic
	}

	var lastServer *model.Row
	restore := func() {
		if lastServer != nil {
			cache[rowID] = *lastServer
		} else if hasLocal {
			cache[rowID] = before
		}
	}

	for attempt := 0; attempt <= maxToggleRetries; attempt++ {
		current, err := t.store.FetchRow(ctx, rowID)
		if err != nil {
			restore()
			return err
		}
		lastServer = current
		if ctx.Err() != nil {
			restore()
			return ctx.Err()
		}
		flags := current.ReviewFlags.With(flag, value)
		updated, err := t.store.UpdateRow(ctx, rowID, current.Fields, flags, current.Version)
		if err == nil {
			committed := *current.Clone()
			committed.ReviewFlags = flags
			committed.Version = updated.Version
			cache[rowID] = committed
			// quarantine our own commit too so a poll response that
			// raced the write cannot flip the checkbox back
			t.session.ClaimFlag(rowID, flag, value, updated.Version)
			return nil
		}
		if conflict, ok := appErr.AsVersionConflict(err); ok {
			if conflict.Current != nil {
				lastServer = conflict.Current
			}
			continue
		}
		restore()
		return err
	}
	restore()
	return fmt.Errorf("toggle %s on %s: retries exhausted: %w", flag, rowID, appErr.ErrConflict)
}
