package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamMutations is the JetStream stream backing the cluster
	// bridge's event broadcast (spec §5).
	StreamMutations = "ACEBASE_MUTATIONS"

	// SubjectMutationPrefix is the subject prefix mutation events
	// publish under, namespaced by EventType so a worker can subscribe
	// to a subset with a wildcard subject if it ever needs to.
	SubjectMutationPrefix = "mutations."
)

// SubjectForEvent returns the NATS subject an Event of type t publishes
// to.
func SubjectForEvent(t EventType) string {
	return SubjectMutationPrefix + string(t)
}

// EnsureStream creates the ACEBASE_MUTATIONS stream if it doesn't already
// exist. Called once by whichever process stands up JetStream first (the
// primary, in the cluster-bridge topology spec §5 describes).
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamMutations); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamMutations,
			Subjects: []string{SubjectMutationPrefix + ">"},
			Storage:  nats.FileStorage,
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamMutations, err)
		}
	}
	return nil
}
