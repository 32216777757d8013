package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the mirror client and the
// address validation source return these (optionally wrapped); services translate
// them into domain errors.
//
//   - ErrNotFound: row or key does not exist
//   - ErrConflict: a uniqueness constraint was hit (duplicate payment reference, refund)
//   - ErrStale: a versioned write lost to a newer version
//   - ErrInvalidState: entity in wrong state for the requested operation
//   - ErrUnavailable: backing service unreachable, lock not obtained, or timed out
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStale        = errors.New("stale version")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
