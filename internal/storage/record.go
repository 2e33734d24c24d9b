// Package storage defines the storage backend protocol (spec §4.4) and the
// StoredRecord wire shape (spec §3, §6) that every backend implementation
// must produce from Get and accept into Set.
package storage

import (
	"context"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// Record is the unit a backend persists: a node's kind, its materialized
// value, and revisioning/timestamp metadata (spec §3 "StoredRecord").
//
// For scalar kinds, Value holds the native Go value directly. For
// composite kinds (object/array), Value holds a flat map of direct-child
// key -> either a native inline value or a valuecodec.TaggedChild
// placeholder, per spec §4.2.
type Record struct {
	Type       valuecodec.Kind
	Value      any
	Revision   string
	RevisionNr int
	Created    int64 // epoch ms
	Modified   int64 // epoch ms
}

// IsComposite reports whether the record's kind is object or array.
func (r *Record) IsComposite() bool {
	return r != nil && (r.Type == valuecodec.KindObject || r.Type == valuecodec.KindArray)
}

// ChildMap returns r.Value as a map[string]any, or an empty map if r is a
// non-composite or nil record.
func (r *Record) ChildMap() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	if m, ok := r.Value.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// IncludeOptions controls which facets of a child a childrenOf/descendantsOf
// walk loads before invoking addCb.
type IncludeOptions struct {
	Metadata bool
	Value    bool
}

// CheckFunc is invoked for every candidate path a backend's childrenOf or
// descendantsOf enumerates, before any record is loaded. Only if it
// returns true is the record read and AddFunc invoked (spec §4.4).
type CheckFunc func(childPath path.Path) bool

// AddFunc receives a child/descendant path and its record (nil if
// IncludeOptions requested no metadata/value, i.e. existence-only).
// Returning false halts iteration.
type AddFunc func(childPath path.Path, record *Record) bool

// Transaction is the unit of work a Backend hands the engine for a single
// get/set/write cycle (spec §4.4).
type Transaction interface {
	Get(ctx context.Context, p path.Path) (*Record, error)
	Set(ctx context.Context, p path.Path, r *Record) error
	Remove(ctx context.Context, p path.Path) error

	GetMultiple(ctx context.Context, paths []path.Path) (map[string]*Record, error)
	SetMultiple(ctx context.Context, entries map[string]*Record) error
	RemoveMultiple(ctx context.Context, paths []path.Path) error

	// ChildrenOf streams the direct children of p. The backend may visit
	// candidates in any order but must invoke check for every path it
	// might pass to add.
	ChildrenOf(ctx context.Context, p path.Path, include IncludeOptions, check CheckFunc, add AddFunc) error

	// DescendantsOf streams every descendant of p (not just direct
	// children), same check/add streaming protocol.
	DescendantsOf(ctx context.Context, p path.Path, include IncludeOptions, check CheckFunc, add AddFunc) error

	// Commit finalizes the transaction. For backends that opt into
	// engine-managed locking (see IsEngineManaged), this is a no-op; the
	// engine itself serialized writers via the locker.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's effects, if the backend
	// natively supports atomicity; a no-op for engine-managed backends.
	Rollback(ctx context.Context, reason error) error

	// MoveToParentPath re-scopes the transaction's lock/resource claim to
	// targetParent and returns the effective path afterward, mirroring
	// locker.Lock.MoveToParent for backends with their own locking.
	MoveToParentPath(ctx context.Context, targetParent path.Path) (path.Path, error)
}

// Backend is the pluggable storage protocol (spec §4.4): a single factory
// that hands out transactions scoped to a path and read/write intent.
type Backend interface {
	// GetTransaction opens a Transaction for the given path and intent.
	GetTransaction(ctx context.Context, opts TransactionOptions) (Transaction, error)

	// IsEngineManaged reports whether this backend relies on the engine's
	// own Locker for write serialization (true), or provides native
	// transactional atomicity itself (false).
	IsEngineManaged() bool

	// Close releases any resources held by the backend.
	Close() error
}

// TransactionOptions parameterizes GetTransaction.
type TransactionOptions struct {
	Path  path.Path
	Write bool
}
