package errors

import (
	"errors"
	"fmt"

	"github.com/tablekeep/tablekeep/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal")
)

// LockHeldError reports a live lock owned by someone else. It is surfaced
// to the caller as-is and never retried automatically.
type LockHeldError struct {
	Holder    string
	ExpiresAt int64
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("row locked by %s until %d", e.Holder, e.ExpiresAt)
}

// VersionConflictError carries the authoritative current row so the caller
// can decide what to resubmit without an extra read.
type VersionConflictError struct {
	Current *model.Row
}

func (e *VersionConflictError) Error() string {
	if e.Current == nil {
		return "version conflict"
	}
	return fmt.Sprintf("version conflict, current version %d", e.Current.Version)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func AsLockHeld(err error) (*LockHeldError, bool) {
	var target *LockHeldError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func AsVersionConflict(err error) (*VersionConflictError, bool) {
	var target *VersionConflictError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
