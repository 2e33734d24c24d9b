package eventbus

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/acebase-go/acebase/internal/mutation"
	"github.com/acebase-go/acebase/internal/path"
)

// Bridge is the worker side of the cluster bridge (spec §5): it durably
// subscribes to mutation events published by a primary's
// MutationBroadcaster and replays each one through its own local
// mutation.Dispatcher, so the worker's in-process subscription registry
// and index coordinator fire exactly as if the write had happened
// locally.
type Bridge struct {
	dispatch *mutation.Dispatcher
	sub      *nats.Subscription
}

// NewBridge subscribes durable (a stable per-worker consumer name, so a
// restart resumes instead of redelivering from the start) to subject on
// js, replaying every message through dispatch. Messages are manually
// acked only after a successful replay, so a worker crash mid-replay
// redelivers rather than silently drops.
func NewBridge(js nats.JetStreamContext, subject, durable string, dispatch *mutation.Dispatcher) (*Bridge, error) {
	b := &Bridge{dispatch: dispatch}
	sub, err := js.Subscribe(subject, b.handle, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	b.sub = sub
	return b, nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("eventbus: bridge dropped unparseable message on %s: %v", msg.Subject, err)
		_ = msg.Ack()
		return
	}

	mutPath, err := path.Parse(ev.Path)
	if err != nil {
		log.Printf("eventbus: bridge dropped message with bad path %q: %v", ev.Path, err)
		_ = msg.Ack()
		return
	}
	topPath, err := path.Parse(ev.TopPath)
	if err != nil {
		topPath = mutPath
	}

	if err := b.dispatch.Dispatch(context.Background(), mutPath, topPath, ev.OldValue, ev.NewValue, ev.Context); err != nil {
		log.Printf("eventbus: bridge replay failed for %s: %v", ev.Path, err)
		return
	}
	_ = msg.Ack()
}

// Stop unsubscribes the bridge. No further replays happen after it
// returns.
func (b *Bridge) Stop() error {
	return b.sub.Unsubscribe()
}
