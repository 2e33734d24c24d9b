// Package memory implements an in-process storage.Backend over a guarded
// map, grounded on the teacher's internal/storage/memory package: a single
// mutex-protected map keyed by the record's address, with context-taking
// CRUD methods. It never provides native transactional atomicity, so it
// opts into engine-managed locking (storage.Backend.IsEngineManaged ==
// true) and its Commit/Rollback are no-ops.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
)

// Backend is an in-memory storage.Backend. Safe for concurrent use; the
// engine still serializes writers through its own locker since
// IsEngineManaged reports true.
type Backend struct {
	mu   sync.RWMutex
	data map[string]*storage.Record
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[string]*storage.Record)}
}

func (b *Backend) IsEngineManaged() bool { return true }

func (b *Backend) Close() error { return nil }

func (b *Backend) GetTransaction(_ context.Context, opts storage.TransactionOptions) (storage.Transaction, error) {
	return &txn{backend: b}, nil
}

type txn struct {
	backend *Backend
}

func (t *txn) Get(_ context.Context, p path.Path) (*storage.Record, error) {
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	r, ok := t.backend.data[p.String()]
	if !ok {
		return nil, nil
	}
	return cloneRecord(r), nil
}

func (t *txn) Set(_ context.Context, p path.Path, r *storage.Record) error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	t.backend.data[p.String()] = cloneRecord(r)
	return nil
}

func (t *txn) Remove(_ context.Context, p path.Path) error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	delete(t.backend.data, p.String())
	return nil
}

func (t *txn) GetMultiple(ctx context.Context, paths []path.Path) (map[string]*storage.Record, error) {
	return storage.DefaultGetMultiple(ctx, t, paths)
}

func (t *txn) SetMultiple(ctx context.Context, entries map[string]*storage.Record) error {
	return storage.DefaultSetMultiple(ctx, t, entries)
}

func (t *txn) RemoveMultiple(ctx context.Context, paths []path.Path) error {
	return storage.DefaultRemoveMultiple(ctx, t, paths)
}

func (t *txn) ChildrenOf(ctx context.Context, p path.Path, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	return t.walk(ctx, p, false, include, check, add)
}

func (t *txn) DescendantsOf(ctx context.Context, p path.Path, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	return t.walk(ctx, p, true, include, check, add)
}

// walk enumerates every stored key under p: direct children only unless
// deep is set. It satisfies the check-before-load streaming protocol
// required by spec §4.4 even though the in-memory map already holds fully
// materialized records — check is still called for every candidate before
// add, so callers relying on that ordering behave identically against any
// backend.
func (t *txn) walk(_ context.Context, p path.Path, deep bool, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	t.backend.mu.RLock()
	type candidate struct {
		p path.Path
		r *storage.Record
	}
	var candidates []candidate
	prefix := p.String()
	for key, r := range t.backend.data {
		if key == prefix {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, prefix+"/") && !strings.HasPrefix(key, prefix+"[") {
			continue
		}
		cp, err := path.Parse(key)
		if err != nil {
			continue
		}
		if !deep && !path.IsChildOf(cp, p) {
			continue
		}
		if deep && !path.IsDescendantOf(cp, p) {
			continue
		}
		candidates = append(candidates, candidate{p: cp, r: r})
	}
	t.backend.mu.RUnlock()

	for _, c := range candidates {
		if !check(c.p) {
			continue
		}
		var rec *storage.Record
		if include.Metadata || include.Value {
			rec = cloneRecord(c.r)
		}
		if !add(c.p, rec) {
			return nil
		}
	}
	return nil
}

func (t *txn) Commit(_ context.Context) error { return nil }

func (t *txn) Rollback(_ context.Context, _ error) error { return nil }

func (t *txn) MoveToParentPath(_ context.Context, targetParent path.Path) (path.Path, error) {
	return targetParent, nil
}

func cloneRecord(r *storage.Record) *storage.Record {
	if r == nil {
		return nil
	}
	cp := *r
	if m, ok := r.Value.(map[string]any); ok {
		cloned := make(map[string]any, len(m))
		for k, v := range m {
			cloned[k] = v
		}
		cp.Value = cloned
	}
	return &cp
}
