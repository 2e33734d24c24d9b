package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// Executor runs Query plans against an engine, its index coordinator and
// its subscription registry (spec §4.9 "Execution"). A caller normally
// builds one Executor per database handle, sharing the same engine,
// coordinator and registry the engine itself was constructed with.
type Executor struct {
	eng     *engine.Engine
	indexes *index.Coordinator
	subs    *subscribe.Registry
}

// NewExecutor wires an Executor over the given engine/coordinator/registry
// triple.
func NewExecutor(eng *engine.Engine, indexes *index.Coordinator, subs *subscribe.Registry) *Executor {
	return &Executor{eng: eng, indexes: indexes, subs: subs}
}

// filterPasses runs one indexed filter's Test against a candidate's full
// record value (spec §4.9 execution step 1/live-query re-evaluation).
func filterPasses(idxF indexedFilter, fullValue any) (bool, error) {
	kv := index.ExtractKeyValue(fullValue, idxF.filter.Key)
	return idxF.idx.Test(kv, idxF.filter.Op, idxF.filter.Compare)
}

// tableScanPasses implements matchNode for one table-scan filter (spec
// §4.9 execution step 3), descending into nested "a/b" keys via
// index.ExtractKeyValue before evaluating the operator generically.
func tableScanPasses(f Filter, fullValue any) (bool, error) {
	kv := index.ExtractKeyValue(fullValue, f.Key)
	return index.Evaluate(kv, f.Op, f.Compare)
}

// matches reports whether fullValue satisfies every indexed and
// table-scan filter in p.
func (p *plan) matches(fullValue any) (bool, error) {
	for _, idxF := range p.indexed {
		ok, err := filterPasses(idxF, fullValue)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	for _, f := range p.tableScan {
		ok, err := tableScanPasses(f, fullValue)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// candidatePaths enumerates the paths matches() needs to be run against:
// the intersection of every indexed filter's ResultSet (shortest set
// probed first, spec §4.9 "intersect result sets on record path, shortest
// set first, probe the rest"), or every direct child of the base path when
// no filter was index-backed.
func (e *Executor) candidatePaths(ctx context.Context, q *Query, p *plan) ([]path.Path, error) {
	if len(p.indexed) > 0 {
		sets := make([]*index.ResultSet, len(p.indexed))
		for i, idxF := range p.indexed {
			rs, err := idxF.idx.Query(idxF.filter.Op, idxF.filter.Compare)
			if err != nil {
				return nil, err
			}
			sets[i] = rs
		}
		sort.Slice(sets, func(i, j int) bool { return sets[i].Len() < sets[j].Len() })
		merged := sets[0]
		for _, s := range sets[1:] {
			merged = merged.Intersect(s)
		}
		return merged.Paths(), nil
	}

	if hasWildcard(q.base) {
		return nil, fmt.Errorf("%w: wildcard query %q has no index-backed filters", acebaseerr.ErrIndexUnavailable, q.base)
	}

	var out []path.Path
	err := e.eng.GetChildren(ctx, q.base, func(info engine.NodeInfo) bool {
		out = append(out, info.Path)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get executes q against e and returns the matching items (spec §4.9
// execution steps 1-3). When opts.Monitor enables any of add/change/remove
// and opts.EventHandler is set, the returned Monitor stays subscribed
// until Stop is called.
func (e *Executor) Get(ctx context.Context, q *Query, opts Options) ([]Item, *Monitor, error) {
	p, err := planQuery(e.indexes, q)
	if err != nil {
		return nil, nil, err
	}

	candidates, err := e.candidatePaths(ctx, q, p)
	if err != nil {
		return nil, nil, err
	}

	items := make([]Item, 0, len(candidates))
	values := make([]any, 0, len(candidates))
	matched := map[string]bool{}
	for _, cp := range candidates {
		res, err := e.eng.Get(ctx, cp, engine.DefaultGetOptions())
		if err != nil {
			return nil, nil, err
		}
		if !res.Exists {
			continue
		}
		ok, err := p.matches(res.Value)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		items = append(items, Item{Path: cp, Value: res.Value})
		values = append(values, res.Value)
		matched[cp.String()] = true
	}

	sortItems(items, values, q.order)

	if q.skip > 0 {
		if q.skip >= len(items) {
			items = nil
		} else {
			items = items[q.skip:]
		}
	}
	if q.take > 0 && len(items) > q.take {
		items = items[:q.take]
	}

	if opts.Snapshots {
		for i := range items {
			res, err := e.eng.Get(ctx, items[i].Path, opts.Get)
			if err != nil {
				return nil, nil, err
			}
			items[i].Value = res.Value
		}
	} else {
		for i := range items {
			items[i].Value = nil
		}
	}

	var mon *Monitor
	if opts.EventHandler != nil && (opts.Monitor.Add || opts.Monitor.Change || opts.Monitor.Remove) {
		mon = e.startMonitor(q, p, opts, matched)
	}

	return items, mon, nil
}
