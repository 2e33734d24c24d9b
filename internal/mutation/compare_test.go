package mutation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareValuesIdentical(t *testing.T) {
	require.Equal(t, Identical, CompareValues("x", "x").Kind)
	require.Equal(t, Identical, CompareValues(5.0, 5.0).Kind)
}

func TestCompareValuesAddedRemoved(t *testing.T) {
	require.Equal(t, Added, CompareValues(nil, "x").Kind)
	require.Equal(t, Removed, CompareValues("x", nil).Kind)
}

func TestCompareValuesKeyDiff(t *testing.T) {
	old := map[string]any{"a": 1.0, "b": 2.0}
	new := map[string]any{"a": 1.0, "b": 3.0, "c": 4.0}
	cmp := CompareValues(old, new)
	require.Equal(t, KeyDiff, cmp.Kind)
	require.ElementsMatch(t, []string{"c"}, cmp.Added)
	require.Empty(t, cmp.Removed)
	require.Len(t, cmp.Changed, 1)
	require.Equal(t, "b", cmp.Changed[0].Key)
}

func TestCompareValuesArraysAtomic(t *testing.T) {
	cmp := CompareValues([]any{1.0, 2.0}, []any{1.0, 3.0})
	require.Equal(t, Changed, cmp.Kind)
}

func TestLeafChangesEnumeratesNestedAndStopsAtArrays(t *testing.T) {
	old := map[string]any{"profile": map[string]any{"name": "Alice", "tags": []any{"a"}}}
	new := map[string]any{"profile": map[string]any{"name": "Alicia", "tags": []any{"a", "b"}}}
	leaves := LeafChanges(old, new, nil)
	require.Len(t, leaves, 2)
	targets := map[string]bool{}
	for _, l := range leaves {
		targets[joinTarget(l.Target)] = true
	}
	require.True(t, targets["profile/name"])
	require.True(t, targets["profile/tags"])
}

func joinTarget(t []string) string {
	out := ""
	for i, s := range t {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
