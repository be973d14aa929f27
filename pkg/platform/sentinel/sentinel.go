package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: optimistic version check failed on save
//   - ErrAlreadyUsed: a uniqueness constraint rejected the write
//   - ErrInvalidState: record in the wrong state for the requested operation
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrLockHeld: a key lock could not be acquired in time
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrLockHeld     = errors.New("lock held")
)
