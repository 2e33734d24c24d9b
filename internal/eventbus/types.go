package eventbus

import "time"

// EventType names the kind of event flowing through the bus. Only one
// family exists today (mutation replication); the type is kept open so a
// future stream (e.g. index-rebuild-complete) can share the same Handler
// chain without a breaking change.
type EventType string

const (
	// EventMutation carries one write's pre/post image across the
	// cluster bridge (spec §5): MutationBroadcaster emits it after the
	// local mutation.Dispatcher has already run, Bridge replays it into
	// a worker's own Dispatcher on the other end.
	EventMutation EventType = "mutation"
)

// Event is the wire record for one EventMutation. Path/TopPath are the
// canonical string form of the write's mutPath/topEventPath (spec §4.5
// step 1) — carried as strings rather than path.Path so Event round-trips
// through encoding/json without a custom (Un)MarshalJSON on path.Path.
type Event struct {
	Type    EventType `json:"type"`
	Path    string    `json:"path"`
	TopPath string    `json:"top_path"`

	OldValue any `json:"old_value,omitempty"`
	NewValue any `json:"new_value,omitempty"`
	Context  any `json:"context,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Result aggregates in-process Handler responses to a dispatched Event.
// Handlers for mutation replication have nothing useful to report back
// today (unlike the teacher's hook handlers, which can block a tool
// call), so Result only carries diagnostics for now.
type Result struct {
	Warnings []string `json:"warnings,omitempty"`
}
