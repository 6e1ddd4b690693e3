package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrLockHeld
	ErrVersionConflict
	ErrInternal
)
