package subscribe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/path"
)

func TestOnTriggerAndOff(t *testing.T) {
	r := New()
	var fired []Event
	sub := r.On(path.MustParse("users/alice"), EventValue, func(e Event) bool {
		fired = append(fired, e)
		return true
	})

	r.Trigger(EventValue, path.MustParse("users/alice"), path.MustParse("users/alice"), nil, map[string]any{"age": 30.0}, nil)
	require.Len(t, fired, 1)

	r.Off(sub)
	r.Trigger(EventValue, path.MustParse("users/alice"), path.MustParse("users/alice"), nil, nil, nil)
	require.Len(t, fired, 1)
}

func TestCallbackReturningFalseUnsubscribes(t *testing.T) {
	r := New()
	calls := 0
	r.On(path.MustParse("a"), EventValue, func(e Event) bool {
		calls++
		return false
	})
	r.Trigger(EventValue, path.MustParse("a"), path.MustParse("a"), nil, 1, nil)
	r.Trigger(EventValue, path.MustParse("a"), path.MustParse("a"), nil, 2, nil)
	require.Equal(t, 1, calls)
}

func TestGetValueSubscribersForPathValueOnAncestor(t *testing.T) {
	r := New()
	r.On(path.MustParse("users/alice"), EventValue, func(Event) bool { return true })
	subs := r.GetValueSubscribersForPath(path.MustParse("users/alice/age"))
	require.Len(t, subs, 1)
}

func TestGetValueSubscribersForPathExcludesNotify(t *testing.T) {
	r := New()
	r.On(path.MustParse("users/alice"), EventNotifyValue, func(Event) bool { return true })
	subs := r.GetValueSubscribersForPath(path.MustParse("users/alice"))
	require.Empty(t, subs)
}

func TestGetAllSubscribersForPathWildcard(t *testing.T) {
	r := New()
	r.On(path.MustParse("users/*/posts"), EventChildAdded, func(Event) bool { return true })
	matches := r.GetAllSubscribersForPath(path.MustParse("users/alice/posts/p1"))
	require.Len(t, matches, 1)
	require.Equal(t, "users/alice/posts", matches[0].EventPath.String())
}
