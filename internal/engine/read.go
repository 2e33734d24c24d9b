package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/locker"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// GetOptions controls which facets of a node Get loads (spec §4.5 read
// pipeline step 3-4).
type GetOptions struct {
	// Include, if non-empty, restricts the result to these slash-separated
	// child-key paths (relative to the requested node) plus their
	// ancestors and descendants; all other properties are pruned. Paths
	// are compared literally; "*" is not treated as a wildcard.
	Include []string
	// Exclude prunes these relative child-key paths (compared literally)
	// from the result.
	Exclude []string
	// ChildObjects, when false, prunes any composite (object/array) child
	// from the result, keeping only scalar direct properties.
	ChildObjects bool
}

// DefaultGetOptions returns the zero-filter, include-children default.
func DefaultGetOptions() GetOptions {
	return GetOptions{ChildObjects: true}
}

// NodeResult is the outcome of Get: the assembled value plus the metadata
// of the nearest dedicated record backing it.
type NodeResult struct {
	Value      any
	Exists     bool
	Revision   string
	RevisionNr int
	Created    int64
	Modified   int64
}

// Get implements the read pipeline of spec §4.5: acquire a read lock,
// load the target record (falling back to the parent's inline entry if
// there is no dedicated record at p), assemble composite descendants, and
// apply the include/exclude/childObjects filters.
func (e *Engine) Get(ctx context.Context, p path.Path, opts GetOptions) (*NodeResult, error) {
	if hasWildcard(p) {
		return nil, fmt.Errorf("%w: cannot get a wildcard path %q, use a query instead", acebaseerr.ErrNotAllowed, p)
	}

	tid := newTid()
	lock, err := e.lk.Lock(ctx, p, tid, false, "getNode", locker.Options{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.lk.Unlock(lock) }()

	tx, err := e.backend.GetTransaction(ctx, storage.TransactionOptions{Path: p, Write: false})
	if err != nil {
		return nil, err
	}

	meta, err := e.metadataFor(ctx, tx, p)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return nil, err
	}
	value, err := e.readFullNode(ctx, tx, p)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", acebaseerr.ErrBackend, err)
	}

	value = applyFilters(value, opts, nil)

	result := &NodeResult{Value: value, Exists: value != nil}
	if meta != nil {
		result.Revision = meta.Revision
		result.RevisionNr = meta.RevisionNr
		result.Created = meta.Created
		result.Modified = meta.Modified
	}
	return result, nil
}

// metadataFor returns the StoredRecord backing p: p's own dedicated
// record if it has one, or its nearest dedicated ancestor's record if p
// is an inline child (the ancestor's revision/timestamps are shared by
// every inline descendant it carries).
func (e *Engine) metadataFor(ctx context.Context, tx storage.Transaction, p path.Path) (*storage.Record, error) {
	rec, err := tx.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if rec != nil || p.IsRoot() {
		return rec, nil
	}
	return e.metadataFor(ctx, tx, p.Parent())
}

// readFullNode assembles p's complete value: its own record's inline
// entries decoded, plus every dedicated descendant recursively assembled.
// Returns nil if no node exists at p at all.
func (e *Engine) readFullNode(ctx context.Context, tx storage.Transaction, p path.Path) (any, error) {
	rec, err := tx.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if p.IsRoot() {
			return nil, nil
		}
		parentRec, err := tx.Get(ctx, p.Parent())
		if err != nil {
			return nil, err
		}
		if parentRec == nil {
			return nil, nil
		}
		m, _ := parentRec.Value.(map[string]any)
		raw, ok := m[p.LastKey().String()]
		if !ok {
			return nil, nil
		}
		return valuecodec.DecodeInline(raw)
	}
	if rec.Type != valuecodec.KindObject && rec.Type != valuecodec.KindArray {
		return rec.Value, nil
	}
	return e.assembleComposite(ctx, tx, p, rec)
}

func (e *Engine) assembleComposite(ctx context.Context, tx storage.Transaction, p path.Path, rec *storage.Record) (any, error) {
	m, _ := rec.Value.(map[string]any)
	result := make(map[string]any, len(m))
	for k, raw := range m {
		dv, err := valuecodec.DecodeInline(raw)
		if err != nil {
			return nil, err
		}
		result[k] = dv
	}

	var walkErr error
	err := tx.ChildrenOf(ctx, p, storage.IncludeOptions{}, func(path.Path) bool { return true }, func(cp path.Path, _ *storage.Record) bool {
		childVal, err := e.readFullNode(ctx, tx, cp)
		if err != nil {
			walkErr = err
			return false
		}
		result[cp.LastKey().String()] = childVal
		return true
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	if rec.Type == valuecodec.KindArray {
		return assembleArray(result), nil
	}
	return result, nil
}

// applyFilters prunes value per opts, descending with prefix tracking
// relative keys already consumed (spec §4.5 read pipeline step 4).
func applyFilters(value any, opts GetOptions, prefix []string) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := map[string]any{}
	for k, v := range m {
		rel := append(append([]string(nil), prefix...), k)
		if len(opts.Include) > 0 && !pathListedOrAncestor(rel, opts.Include) {
			continue
		}
		if matchesAny(rel, opts.Exclude) {
			continue
		}
		if !opts.ChildObjects {
			if _, isMap := v.(map[string]any); isMap {
				continue
			}
			if _, isArr := v.([]any); isArr {
				continue
			}
		}
		out[k] = applyFilters(v, opts, rel)
	}
	return out
}

func matchesAny(rel []string, patterns []string) bool {
	joined := strings.Join(rel, "/")
	for _, p := range patterns {
		if p == joined {
			return true
		}
	}
	return false
}

// pathListedOrAncestor reports whether rel is itself one of the included
// paths, an ancestor of one (so intermediate containers survive), or a
// descendant of one (so nested properties of an included subtree survive).
func pathListedOrAncestor(rel []string, included []string) bool {
	joined := strings.Join(rel, "/")
	for _, inc := range included {
		if inc == joined || strings.HasPrefix(inc, joined+"/") || strings.HasPrefix(joined, inc+"/") {
			return true
		}
	}
	return false
}
