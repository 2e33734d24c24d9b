package query

import (
	"sort"

	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
)

// ranked pairs an Item with its full record value, so sorting permutes
// both together instead of risking the two slices drifting out of
// alignment under an independent sort.Slice over items alone.
type ranked struct {
	item  Item
	value any
}

// sortItems orders items per spec §4.9's sort contract: unequal types sort
// undefined (absent) before defined; equal-typed values compare per
// natural ordering; ties break by lexical path. order[0] is primary.
// values holds each item's full record value, indexed the same as items,
// so order keys (including nested "a/b" keys) are read the same way
// tableScanPasses reads filter keys.
func sortItems(items []Item, values []any, order []Order) {
	rs := make([]ranked, len(items))
	for i, it := range items {
		rs[i] = ranked{item: it, value: values[i]}
	}

	if len(order) == 0 {
		sort.SliceStable(rs, func(i, j int) bool {
			return path.Compare(rs[i].item.Path, rs[j].item.Path) < 0
		})
	} else {
		sort.SliceStable(rs, func(i, j int) bool {
			for _, o := range order {
				a := index.ExtractKeyValue(rs[i].value, o.Key)
				b := index.ExtractKeyValue(rs[j].value, o.Key)
				c, ok := compareForSort(a, b)
				if !ok || c == 0 {
					continue
				}
				if o.Ascending {
					return c < 0
				}
				return c > 0
			}
			return path.Compare(rs[i].item.Path, rs[j].item.Path) < 0
		})
	}

	for i, r := range rs {
		items[i] = r.item
	}
}

// compareForSort returns -1/0/1 comparing a against b; ok is always true
// since undefined-vs-defined and type mismatches are well-ordered (spec
// §4.9 "unequal types — undefined < defined").
func compareForSort(a, b any) (int, bool) {
	if a == nil && b == nil {
		return 0, true
	}
	if a == nil {
		return -1, true
	}
	if b == nil {
		return 1, true
	}
	if c, ok := index.CompareOrdered(a, b); ok {
		return c, true
	}
	return 0, true
}
