package eventbus

import "context"

// Handler processes events dispatched on the bus. Handlers run in
// priority order (lower value first) for the event types they declare.
// Grounded on the teacher's internal/eventbus.Handler — unchanged shape,
// since the contract (declare the types you want, get called in
// priority order, errors don't stop the chain) applies regardless of
// what the payload actually is.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler processes.
	Handles() []EventType

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes a single event and may append to result. An
	// error is logged but does not stop the handler chain.
	Handle(ctx context.Context, event *Event, result *Result) error
}
