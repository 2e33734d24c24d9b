package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type testHandler struct {
	id       string
	handles  []EventType
	priority int
	fn       func(ctx context.Context, event *Event, result *Result) error
}

func (h *testHandler) ID() string           { return h.id }
func (h *testHandler) Handles() []EventType { return h.handles }
func (h *testHandler) Priority() int        { return h.priority }
func (h *testHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	if h.fn != nil {
		return h.fn(ctx, event, result)
	}
	return nil
}

func TestDispatchNilEvent(t *testing.T) {
	bus := New()
	_, err := bus.Dispatch(context.Background(), nil)
	require.Error(t, err)
}

func TestDispatchNoHandlers(t *testing.T) {
	bus := New()
	result, err := bus.Dispatch(context.Background(), &Event{Type: EventMutation, Path: "a/b"})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestDispatchRunsHandlersInPriorityOrder(t *testing.T) {
	bus := New()
	var order []string

	bus.Register(&testHandler{
		id: "second", handles: []EventType{EventMutation}, priority: 20,
		fn: func(_ context.Context, _ *Event, _ *Result) error {
			order = append(order, "second")
			return nil
		},
	})
	bus.Register(&testHandler{
		id: "first", handles: []EventType{EventMutation}, priority: 10,
		fn: func(_ context.Context, _ *Event, _ *Result) error {
			order = append(order, "first")
			return nil
		},
	})

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventMutation, Path: "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestDispatchSkipsNonMatchingHandlers(t *testing.T) {
	bus := New()
	called := false
	bus.Register(&testHandler{
		id: "other", handles: []EventType{EventType("something-else")}, priority: 0,
		fn: func(_ context.Context, _ *Event, _ *Result) error {
			called = true
			return nil
		},
	})

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventMutation, Path: "x"})
	require.NoError(t, err)
	require.False(t, called)
}

func TestUnregister(t *testing.T) {
	bus := New()
	bus.Register(&testHandler{id: "h1", handles: []EventType{EventMutation}, priority: 0})
	require.Len(t, bus.Handlers(), 1)

	require.True(t, bus.Unregister("h1"))
	require.Empty(t, bus.Handlers())
	require.False(t, bus.Unregister("h1"))
}

func TestJetStreamEnabledDefaultsFalse(t *testing.T) {
	bus := New()
	require.False(t, bus.JetStreamEnabled())
	require.Nil(t, bus.JetStream())
}

func TestSubjectForEvent(t *testing.T) {
	require.Equal(t, "mutations.mutation", SubjectForEvent(EventMutation))
}
