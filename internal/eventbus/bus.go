// Package eventbus implements the cluster bridge's wire transport (spec
// §5): a Bus that fans a dispatched mutation out to in-process Handlers
// and, when JetStream is configured, republishes it so a worker
// process's own Bus/Bridge can replay it into its in-process C6
// registry. Grounded on the teacher's internal/eventbus package
// (bus.go's handler-chain/JetStream split), narrowed to the one event
// family acebase needs instead of the teacher's hook/decision/oj/agent
// event families.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus dispatches events to registered handlers and optionally publishes
// them to NATS JetStream for cross-process consumption.
type Bus struct {
	handlers []Handler
	js       nats.JetStreamContext
	mu       sync.RWMutex
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// SetJetStream attaches a JetStream context for event publishing. When
// set, Dispatch publishes the event after running local handlers.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled reports whether JetStream publishing is configured.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// JetStream returns the attached JetStream context, or nil.
func (b *Bus) JetStream() nats.JetStreamContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order doesn't matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID, reporting whether one was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns every registered handler, for introspection.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// Dispatch runs every handler that declares event.Type, in priority
// order (lowest first), then publishes to JetStream if configured.
// Handler errors are logged but never stop the chain or fail Dispatch —
// the bus favors best-effort delivery to every interested party over an
// all-or-nothing transaction.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	js := b.js
	b.mu.RUnlock()

	result := &Result{}
	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event, result); err != nil {
			log.Printf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
		}
	}

	if js != nil {
		b.publish(js, event)
	}
	return result, nil
}

// publish marshals event and publishes it to its subject. Errors are
// logged but never propagated: JetStream is supplementary to local
// dispatch, not a prerequisite for it.
func (b *Bus) publish(js nats.JetStreamContext, event *Event) {
	now := time.Now().UTC()
	event.PublishedAt = &now
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("eventbus: failed to marshal event for JetStream: %v", err)
		return
	}
	subject := SubjectForEvent(event.Type)
	ack, err := js.Publish(subject, data)
	if err != nil {
		log.Printf("eventbus: JetStream publish to %s failed: %v", subject, err)
		return
	}
	log.Printf("eventbus: published to %s (stream=%s seq=%d, %d bytes)", subject, ack.Stream, ack.Sequence, len(data))
}

// matchingHandlers returns handlers that declare t, sorted by priority.
// Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(t EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, want := range h.Handles() {
			if want == t {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
