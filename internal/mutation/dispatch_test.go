package mutation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/subscribe"
)

func TestDispatchValueEventFiresOnChange(t *testing.T) {
	subs := subscribe.New()
	var mu sync.Mutex
	var fired []subscribe.Event
	subs.On(path.MustParse("users/alice"), subscribe.EventValue, func(e subscribe.Event) bool {
		mu.Lock()
		fired = append(fired, e)
		mu.Unlock()
		return true
	})
	d := New(subs, nil)

	old := map[string]any{"age": 29.0}
	new := map[string]any{"age": 30.0}
	require.NoError(t, d.Dispatch(context.Background(), path.MustParse("users/alice"), path.MustParse("users/alice"), old, new, nil))

	// Dispatch hands subscriber delivery to a goroutine (spec §4.6 "next
	// tick"), so wait for it rather than asserting right after it returns.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, old, fired[0].OldValue)
	require.Equal(t, new, fired[0].NewValue)
}

func TestDispatchValueEventSkipsUnrelatedPath(t *testing.T) {
	subs := subscribe.New()
	var mu sync.Mutex
	calls := 0
	subs.On(path.MustParse("users/alice"), subscribe.EventValue, func(e subscribe.Event) bool {
		mu.Lock()
		calls++
		mu.Unlock()
		return true
	})
	d := New(subs, nil)
	require.NoError(t, d.Dispatch(context.Background(), path.MustParse("users/bob"), path.MustParse("users/bob"), nil, map[string]any{"age": 31.0}, nil))

	// Give the delivery goroutine a chance to run; it must not fire at all.
	require.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls != 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDispatchChildAddedOnParent(t *testing.T) {
	subs := subscribe.New()
	var mu sync.Mutex
	var fired []subscribe.Event
	subs.On(path.MustParse("users"), subscribe.EventChildAdded, func(e subscribe.Event) bool {
		mu.Lock()
		fired = append(fired, e)
		mu.Unlock()
		return true
	})
	d := New(subs, nil)
	require.NoError(t, d.Dispatch(context.Background(), path.MustParse("users/carol"), path.MustParse("users/carol"), nil, map[string]any{"age": 22.0}, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "users/carol", fired[0].Path.String())
}

func TestDispatchMutationsBatchesLeafChanges(t *testing.T) {
	subs := subscribe.New()
	var mu sync.Mutex
	var fired []subscribe.Event
	subs.On(path.MustParse("users/alice"), subscribe.EventMutations, func(e subscribe.Event) bool {
		mu.Lock()
		fired = append(fired, e)
		mu.Unlock()
		return true
	})
	d := New(subs, nil)
	old := map[string]any{"name": "Alice", "age": 29.0}
	new := map[string]any{"name": "Alice", "age": 30.0}
	require.NoError(t, d.Dispatch(context.Background(), path.MustParse("users/alice"), path.MustParse("users/alice"), old, new, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired[0].Mutations, 1)
	require.Equal(t, []string{"age"}, fired[0].Mutations[0].Target)
}

func TestDispatchRoutesToIndexCoordinator(t *testing.T) {
	coord := index.New()
	ix := index.NewNormal(path.MustParse("posts"), "likes")
	require.NoError(t, coord.Create(ix))

	d := New(nil, coord)
	d.WaitForIndexUpdates = true
	require.NoError(t, d.Dispatch(context.Background(), path.MustParse("posts/p1"), path.MustParse("posts/p1"), nil, map[string]any{"likes": 5.0}, nil))

	// Index routing stays synchronous on Dispatch's caller (WaitForIndexUpdates
	// depends on it), so this assertion needs no wait.
	rs, err := ix.Query("==", 5.0)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
}
