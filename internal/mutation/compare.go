// Package mutation implements the mutation tracker & event dispatcher
// (spec §4.7): diffing old/new subtree values, computing per-subscriber
// trigger decisions, and forwarding per-record diffs to the index
// coordinator. Grounded on the teacher's internal/eventbus dispatch shape
// (a registry of listeners fanned out from one mutation point) combined
// with internal/query's comparison-building style for the value diff
// itself.
package mutation

import "reflect"

// CompareKind is the outcome of comparing two values (spec §4.7 step 2).
type CompareKind string

const (
	Identical CompareKind = "identical"
	Added     CompareKind = "added"
	Removed   CompareKind = "removed"
	Changed   CompareKind = "changed"
	KeyDiff   CompareKind = "keys"
)

// KeyChange is one differing key within a KeyDiff comparison.
type KeyChange struct {
	Key    string
	Change CompareResult
}

// CompareResult is compareValues's return value: either one of the four
// atomic kinds, or, for two differing objects, the per-key breakdown spec
// §4.7 calls {added, removed, changed}.
type CompareResult struct {
	Kind    CompareKind
	Added   []string
	Removed []string
	Changed []KeyChange
}

// CompareValues computes the spec §4.7 diff between old and new. Arrays
// and binary values compare structurally/byte-wise as a single unit
// (spec's "typed-array and Date equality is structural/byte-wise"); only
// plain objects are diffed key-by-key.
func CompareValues(old, new any) CompareResult {
	if deepEqual(old, new) {
		return CompareResult{Kind: Identical}
	}
	if old == nil && new != nil {
		return CompareResult{Kind: Added}
	}
	if old != nil && new == nil {
		return CompareResult{Kind: Removed}
	}

	oldMap, oldIsMap := old.(map[string]any)
	newMap, newIsMap := new.(map[string]any)
	if oldIsMap && newIsMap {
		var added, removed []string
		var changed []KeyChange
		for k, nv := range newMap {
			ov, existed := oldMap[k]
			if !existed {
				added = append(added, k)
				continue
			}
			sub := CompareValues(ov, nv)
			if sub.Kind != Identical {
				changed = append(changed, KeyChange{Key: k, Change: sub})
			}
		}
		for k := range oldMap {
			if _, exists := newMap[k]; !exists {
				removed = append(removed, k)
			}
		}
		if len(added) == 0 && len(removed) == 0 && len(changed) == 0 {
			return CompareResult{Kind: Identical}
		}
		return CompareResult{Kind: KeyDiff, Added: added, Removed: removed, Changed: changed}
	}

	return CompareResult{Kind: Changed}
}

func deepEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// LeafChange is one terminal change discovered while walking a CompareResult
// down to its leaves, used to build "mutated"/"mutations" events (spec
// §4.7 step 5).
type LeafChange struct {
	Target []string
	Prev   any
	Val    any
}

// LeafChanges enumerates every leaf-level change between old and new,
// rooted at prefix. Arrays are never descended into further once reached —
// they are treated atomically, emitted as a single leaf at the array's own
// path (spec §9 "preserve this as: diff internally at element level for
// filter/index purposes, but emit one event per array").
func LeafChanges(old, new any, prefix []string) []LeafChange {
	cmp := CompareValues(old, new)
	switch cmp.Kind {
	case Identical:
		return nil
	case KeyDiff:
		oldMap, _ := old.(map[string]any)
		newMap, _ := new.(map[string]any)
		var out []LeafChange
		for _, k := range cmp.Added {
			out = append(out, LeafChanges(nil, newMap[k], appendKey(prefix, k))...)
		}
		for _, k := range cmp.Removed {
			out = append(out, LeafChanges(oldMap[k], nil, appendKey(prefix, k))...)
		}
		for _, kc := range cmp.Changed {
			out = append(out, LeafChanges(oldMap[kc.Key], newMap[kc.Key], appendKey(prefix, kc.Key))...)
		}
		return out
	default:
		target := append([]string{}, prefix...)
		return []LeafChange{{Target: target, Prev: old, Val: new}}
	}
}

func appendKey(prefix []string, k string) []string {
	out := make([]string, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = k
	return out
}
