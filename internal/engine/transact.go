package engine

import (
	"context"
	"fmt"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/locker"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/pushid"
	"github.com/acebase-go/acebase/internal/storage"
)

// TransactFunc receives the current value at the transacted path (nil if
// absent) and returns the value to write. Returning cancel=true aborts
// the transaction, leaving the tree untouched; returning (nil, false)
// deletes the node, matching JS's undefined-vs-null distinction from spec
// §4.5 ("undefined -> cancel; null -> delete").
type TransactFunc func(current any) (newValue any, cancel bool)

// Transact implements the write-locked variant of spec §4.5's
// transactNode: the write lock is held across the read, the callback
// invocation and the write, so no concurrent writer can interleave and a
// revision reassertion before the final write is unnecessary (the
// alternative "noLock" variant, which re-runs the callback if a
// notify_value subscription fires mid-flight, is not implemented — every
// Transact call takes the lock for its full duration).
func (e *Engine) Transact(ctx context.Context, p path.Path, fn TransactFunc, opts WriteOptions) error {
	if hasWildcard(p) {
		return fmt.Errorf("%w: cannot transact a wildcard path %q", acebaseerr.ErrNotAllowed, p)
	}

	tid := newTid()
	lock, err := e.lk.Lock(ctx, p, tid, true, "transactNode", locker.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = e.lk.Unlock(lock) }()

	tx, err := e.backend.GetTransaction(ctx, storage.TransactionOptions{Path: p, Write: true})
	if err != nil {
		return err
	}

	top := e.resolveTopEventPath(p)
	oldTop, err := e.readFullNode(ctx, tx, top)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}
	rel := relativeKeys(top, p)
	oldAtP := descend(oldTop, rel)

	input, cancel := fn(oldAtP)
	if cancel {
		_ = tx.Rollback(ctx, nil)
		return nil
	}

	newAtP, err := e.resolveNewValue(oldAtP, input, false)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}
	newTop := spliceIn(oldTop, rel, newAtP)

	revision := pushid.New()
	if err := e.placeAt(ctx, tx, p, newAtP, revision); err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", acebaseerr.ErrBackend, err)
	}

	if !opts.SuppressEvents {
		return e.dispatch.Dispatch(ctx, p, top, oldTop, newTop, opts.Context)
	}
	return nil
}
