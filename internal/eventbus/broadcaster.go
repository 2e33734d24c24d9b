package eventbus

import (
	"context"

	"github.com/acebase-go/acebase/internal/mutation"
	"github.com/acebase-go/acebase/internal/path"
)

// MutationBroadcaster wraps a *mutation.Dispatcher so every write also
// reaches the cluster bridge (spec §5): local subscribers/indexes fire
// exactly as C7 already runs them, and the same pre/post image is handed
// to the bus so a worker process's Bridge can replay it. It satisfies
// the engine package's unexported dispatcher interface, so it's a
// drop-in replacement for the plain *mutation.Dispatcher the engine
// builds internally — wire it in with Engine.SetDispatcher.
type MutationBroadcaster struct {
	inner *mutation.Dispatcher
	bus   *Bus
}

// NewMutationBroadcaster pairs inner (which still owns the real
// subscriber/index dispatch) with bus (which owns the optional
// cross-process republish).
func NewMutationBroadcaster(inner *mutation.Dispatcher, bus *Bus) *MutationBroadcaster {
	return &MutationBroadcaster{inner: inner, bus: bus}
}

// Dispatch runs the wrapped Dispatcher, then emits an EventMutation on
// the bus carrying the same arguments, so JetStream-backed workers (and
// any locally registered Handler) observe the write too.
func (b *MutationBroadcaster) Dispatch(ctx context.Context, mutPath, topEventPath path.Path, oldTop, newTop any, reqContext any) error {
	if err := b.inner.Dispatch(ctx, mutPath, topEventPath, oldTop, newTop, reqContext); err != nil {
		return err
	}
	if b.bus == nil {
		return nil
	}
	_, err := b.bus.Dispatch(ctx, &Event{
		Type:     EventMutation,
		Path:     mutPath.String(),
		TopPath:  topEventPath.String(),
		OldValue: oldTop,
		NewValue: newTop,
		Context:  reqContext,
	})
	return err
}
