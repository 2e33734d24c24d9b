package engine

import (
	"context"

	"github.com/acebase-go/acebase/internal/locker"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// NodeInfo describes one direct child as streamed by GetChildren. Inline
// children carry their decoded Value eagerly; dedicated children carry
// only their Type, since loading Value would defeat the point of
// streaming (spec §4.5 "lazy sequence").
type NodeInfo struct {
	Key    string
	Path   path.Path
	Exists bool
	Type   valuecodec.Kind
	Value  any
}

// GetChildren streams p's direct children: every inline entry first, then
// each dedicated child discovered via the backend's ChildrenOf. fn
// returning false stops iteration immediately, before any further record
// is read (spec §4.5 "consumer returns false to stop; engine must respect
// it promptly").
func (e *Engine) GetChildren(ctx context.Context, p path.Path, fn func(NodeInfo) bool) error {
	if hasWildcard(p) {
		return nil
	}
	tid := newTid()
	lock, err := e.lk.Lock(ctx, p, tid, false, "getChildren", locker.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = e.lk.Unlock(lock) }()

	tx, err := e.backend.GetTransaction(ctx, storage.TransactionOptions{Path: p, Write: false})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Commit(ctx) }()

	rec, err := tx.Get(ctx, p)
	if err != nil {
		return err
	}
	if rec == nil || (rec.Type != valuecodec.KindObject && rec.Type != valuecodec.KindArray) {
		return nil
	}

	m, _ := rec.Value.(map[string]any)
	for key, raw := range m {
		dv, err := valuecodec.DecodeInline(raw)
		if err != nil {
			return err
		}
		kind, err := valuecodec.Classify(dv)
		if err != nil {
			return err
		}
		info := NodeInfo{Key: key, Path: childPathFor(p, key, rec.Type), Exists: true, Type: kind, Value: dv}
		if !fn(info) {
			return nil
		}
	}

	return tx.ChildrenOf(ctx, p, storage.IncludeOptions{Metadata: true}, func(path.Path) bool { return true }, func(cp path.Path, childRec *storage.Record) bool {
		info := NodeInfo{Key: cp.LastKey().String(), Path: cp, Exists: true}
		if childRec != nil {
			info.Type = childRec.Type
		}
		return fn(info)
	})
}
