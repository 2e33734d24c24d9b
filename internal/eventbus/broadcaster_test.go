package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/backend/memory"
	"github.com/acebase-go/acebase/internal/config"
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/mutation"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// TestMutationBroadcasterFiresLocalSubscribersAndHandlers verifies that
// wiring a MutationBroadcaster in via Engine.SetDispatcher preserves C6
// subscriber delivery (fired by the wrapped mutation.Dispatcher) while
// additionally fanning the same write out to a bus Handler — this is
// the "fans out dispatched events to in-process handlers exactly as C7
// requires" half of the cluster bridge, exercised without a live NATS
// server.
func TestMutationBroadcasterFiresLocalSubscribersAndHandlers(t *testing.T) {
	ctx := context.Background()
	subs := subscribe.New()
	coord := index.New()
	eng := engine.New(memory.New(), subs, coord, config.Default())

	bus := New()
	var seen []Event
	bus.Register(&testHandler{
		id:      "recorder",
		handles: []EventType{EventMutation},
		fn: func(_ context.Context, ev *Event, _ *Result) error {
			seen = append(seen, *ev)
			return nil
		},
	})
	broadcaster := NewMutationBroadcaster(mutation.New(subs, coord), bus)
	eng.SetDispatcher(broadcaster)

	var mu sync.Mutex
	var fired []string
	subs.On(path.MustParse("posts"), subscribe.EventChildAdded, func(ev subscribe.Event) bool {
		mu.Lock()
		fired = append(fired, ev.Path.String())
		mu.Unlock()
		return true
	})

	require.NoError(t, eng.Set(ctx, path.MustParse("posts/p1"), map[string]any{"title": "hi"}, engine.WriteOptions{}))

	// Local subscriber delivery runs on its own goroutine (spec §4.6 "next
	// tick"), so wait for it instead of asserting immediately.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"posts/p1"}, fired)
	require.Len(t, seen, 1)
	require.Equal(t, "posts/p1", seen[0].Path)
	require.Equal(t, EventMutation, seen[0].Type)
}

// TestMutationBroadcasterWithoutBusIsNoop confirms a nil bus is a valid
// zero-effort configuration: local dispatch still runs, nothing panics.
func TestMutationBroadcasterWithoutBusIsNoop(t *testing.T) {
	ctx := context.Background()
	subs := subscribe.New()
	coord := index.New()
	eng := engine.New(memory.New(), subs, coord, config.Default())
	eng.SetDispatcher(NewMutationBroadcaster(mutation.New(subs, coord), nil))

	require.NoError(t, eng.Set(ctx, path.MustParse("a"), "v", engine.WriteOptions{}))
}
