package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/acebase-go/acebase/internal/path"
)

// Coordinator maintains the in-memory list of index specs and their
// states (spec §4.8), selecting affected indexes per mutation and routing
// record updates to them in deepest-path-first order.
type Coordinator struct {
	mu      sync.RWMutex
	indexes []Index
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Create registers idx with the coordinator. Returns an error if an index
// already exists on the same pattern+key.
func (c *Coordinator) Create(idx Index) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.indexes {
		if path.Equals(existing.PathPattern(), idx.PathPattern()) && existing.Key() == idx.Key() {
			return fmt.Errorf("index already exists on %s:%s", idx.PathPattern(), idx.Key())
		}
	}
	c.indexes = append(c.indexes, idx)
	return nil
}

// List returns every registered index.
func (c *Coordinator) List() []Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Index, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// Drop removes the index on pattern+key, if any.
func (c *Coordinator) Drop(pattern path.Path, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, idx := range c.indexes {
		if path.Equals(idx.PathPattern(), pattern) && idx.Key() == key {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			return true
		}
	}
	return false
}

// ForPath returns indexes whose pattern is an ancestor/equal of writePath
// or straddles it along the same trail (spec §4.8 selection rule), sorted
// deepest-path-first so nested dependent indexes see consistent state
// before their shallower parents update (spec §4.8 ordering rule).
func (c *Coordinator) ForPath(writePath path.Path) []Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var matched []Index
	for _, idx := range c.indexes {
		if path.IsOnTrailOf(idx.PathPattern(), writePath) {
			matched = append(matched, idx)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return len(matched[i].PathPattern().Keys()) > len(matched[j].PathPattern().Keys())
	})
	return matched
}

// ForKeyOnPattern returns an index matching pattern exactly on key, if any.
func (c *Coordinator) ForKeyOnPattern(pattern path.Path, key string) (Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, idx := range c.indexes {
		if path.Equals(idx.PathPattern(), pattern) && idx.Key() == key {
			return idx, true
		}
	}
	return nil, false
}

// recordPathFor resolves the concrete index-record path straddled by a
// write at writePath: records live one level below a pattern's container
// (e.g. pattern "users/*/posts" with writes under "users/alice/posts/p1"
// index the record at that path), so the record path is writePath
// truncated to patternDepth+1 keys, with the pattern's own (possibly
// wildcarded) prefix validated against writePath's corresponding keys
// (spec §4.7 step 3: "descending via wildcards to enumerate all affected
// concrete paths").
//
// Writes issued at or above a pattern's own container depth (e.g.
// replacing the whole "posts" collection) would affect every record
// beneath it; resolving that generically requires enumerating the
// written subtree, which only the engine (holding the new tree) can do,
// so this resolves only the common single-record case and reports false
// otherwise — callers performing a bulk subtree write are expected to
// call HandleWrite once per affected record themselves.
func recordPathFor(pattern, writePath path.Path) (path.Path, bool) {
	patternKeys := pattern.Keys()
	writeKeys := writePath.Keys()
	if len(writeKeys) < len(patternKeys)+1 {
		return path.Path{}, false
	}
	for i, pk := range patternKeys {
		wk := writeKeys[i]
		if pk.IsIndex != wk.IsIndex {
			return path.Path{}, false
		}
		if pk.IsIndex {
			if !pk.Wildcard && pk.Index != wk.Index {
				return path.Path{}, false
			}
			continue
		}
		if !pk.Wildcard && pk.Name != wk.Name {
			return path.Path{}, false
		}
	}
	rp := path.Root
	for _, k := range writeKeys[:len(patternKeys)+1] {
		if k.IsIndex {
			rp = rp.ChildIndex(k.Index)
		} else {
			rp = rp.Child(k.Name)
		}
	}
	return rp, true
}

// HandleWrite dispatches oldValue/newValue at the indexed key to every
// affected index's HandleRecordUpdate, in coordinator order (already
// deepest-first from ForPath). If wait is false, updates are detached
// (spec §4.7 step 3, waitForIndexUpdates=false).
func (c *Coordinator) HandleWrite(ctx context.Context, writePath path.Path, oldValue, newValue any, wait bool) error {
	indexes := c.ForPath(writePath)
	if len(indexes) == 0 {
		return nil
	}
	if wait {
		for _, idx := range indexes {
			recPath, ok := recordPathFor(idx.PathPattern(), writePath)
			if !ok {
				continue
			}
			if err := idx.HandleRecordUpdate(ctx, recPath, oldValue, newValue); err != nil {
				return fmt.Errorf("index update on %s:%s: %w", idx.PathPattern(), idx.Key(), err)
			}
		}
		return nil
	}
	for _, idx := range indexes {
		idx := idx
		recPath, ok := recordPathFor(idx.PathPattern(), writePath)
		if !ok {
			continue
		}
		go func() {
			_ = idx.HandleRecordUpdate(ctx, recPath, oldValue, newValue)
		}()
	}
	return nil
}
