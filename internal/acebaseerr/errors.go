// Package acebaseerr defines the sentinel error kinds shared across the
// engine. Callers use errors.Is / errors.As against these sentinels rather
// than matching on error strings, following the pattern in
// internal/storage/sqlite/errors.go of the teacher this engine was grown
// from.
package acebaseerr

import "errors"

// Sentinel error kinds, one per abstract kind named in the error handling
// design. Wrap these with fmt.Errorf("...: %w", Err...) to add context.
var (
	// ErrNotFound means no node exists at the requested path.
	ErrNotFound = errors.New("acebase: not found")

	// ErrNotAllowed means the operation is disallowed by protocol, e.g. a
	// write, get or transaction on a wildcard path.
	ErrNotAllowed = errors.New("acebase: not allowed")

	// ErrInvalidArgument means a malformed path, unknown operator, or bad
	// option value was supplied.
	ErrInvalidArgument = errors.New("acebase: invalid argument")

	// ErrInvalidValue means an unstorable value was supplied: undefined
	// without remove_void_properties, a non-object value set at the root,
	// a null inside a value list, or a typed-array/kind mismatch.
	ErrInvalidValue = errors.New("acebase: invalid value")

	// ErrRevisionMismatch means an optimistic-concurrency assertRevision
	// check failed; the caller may retry once.
	ErrRevisionMismatch = errors.New("acebase: revision mismatch")

	// ErrLockExpired means the calling operation's lock was forcibly
	// reclaimed by the warning-timer after three missed renewals.
	ErrLockExpired = errors.New("acebase: lock expired")

	// ErrBackend wraps any error surfaced by the storage backend.
	ErrBackend = errors.New("acebase: backend error")

	// ErrIndexUnavailable means a wildcard query needed an index that does
	// not exist, or a specialized "<type>:<op>" operator had no matching
	// index.
	ErrIndexUnavailable = errors.New("acebase: index unavailable")

	// ErrArrayConstraint means a non-trailing array index was inserted or
	// removed without rewriting the whole array.
	ErrArrayConstraint = errors.New("acebase: array constraint violated")
)
