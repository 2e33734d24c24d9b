package query

import (
	"fmt"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
)

// indexedFilter pairs a filter with the index chosen to run it.
type indexedFilter struct {
	filter Filter
	idx    index.Index
}

// plan is the outcome of planning a Query against a Coordinator (spec
// §4.9 "Planning"). Sorting always runs in memory over loaded candidate
// values (sort.go), rather than borrowing a matched order key's index via
// Take — the spec's "indexed order short-circuits to an index take" fast
// path is an optimization this planner doesn't need to take, since every
// candidate's full value is already loaded to run matches() against it.
type plan struct {
	indexed   []indexedFilter
	tableScan []Filter
}

// bestIndexFor picks the index able to run f on base: it matches if its
// pattern equals base, its key equals f.Key, and its ValidOperators
// include f.Op. Spec §4.9 step 1 additionally scores candidates by how
// many other filter/order keys they cover, to prefer a composite index
// over a narrower one when several qualify; our indexes are single-key, so
// index.Coordinator.Create already rejects a second index on the same
// (pattern, key), leaving at most one candidate and no tie to break.
func bestIndexFor(coord *index.Coordinator, base path.Path, f Filter) index.Index {
	idx, ok := coord.ForKeyOnPattern(base, f.Key)
	if !ok {
		return nil
	}
	if !idx.ValidOperators()[f.Op] {
		return nil
	}
	return idx
}

// planQuery implements spec §4.9 "Planning" steps 1-4.
func planQuery(coord *index.Coordinator, q *Query) (*plan, error) {
	p := &plan{}

	for _, f := range q.filters {
		if index.IsSpecialized(f.Op) {
			idx, ok := coord.ForKeyOnPattern(q.base, f.Key)
			if !ok || !idx.ValidOperators()[f.Op] {
				return nil, fmt.Errorf("%w: specialized operator %q on %q requires a matching index", acebaseerr.ErrIndexUnavailable, f.Op, f.Key)
			}
			p.indexed = append(p.indexed, indexedFilter{filter: f, idx: idx})
			continue
		}
		if idx := bestIndexFor(coord, q.base, f); idx != nil {
			p.indexed = append(p.indexed, indexedFilter{filter: f, idx: idx})
			continue
		}
		if !index.StandardOperators[f.Op] {
			return nil, fmt.Errorf("%w: unknown operator %q", acebaseerr.ErrInvalidArgument, f.Op)
		}
		p.tableScan = append(p.tableScan, f)
	}

	if hasWildcard(q.base) && len(p.tableScan) > 0 {
		return nil, fmt.Errorf("%w: wildcard query %q has un-indexed filter(s), wildcard queries must be fully index-backed", acebaseerr.ErrIndexUnavailable, q.base)
	}

	return p, nil
}

func hasWildcard(p path.Path) bool {
	for _, k := range p.Keys() {
		if k.Wildcard {
			return true
		}
	}
	return false
}
