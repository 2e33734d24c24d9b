package pushid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextHasExpectedLength(t *testing.T) {
	g := &Generator{}
	id := g.Next()
	require.Len(t, id, totalChars)
}

func TestNextWithinSameMillisecondIncrementsAndSorts(t *testing.T) {
	orig := nowFunc
	defer func() { nowFunc = orig }()
	nowFunc = func() int64 { return 1700000000000 }

	g := &Generator{}
	a := g.Next()
	b := g.Next()
	c := g.Next()
	require.Less(t, a, b)
	require.Less(t, b, c)
}

func TestNextAcrossMillisecondsSortsByTime(t *testing.T) {
	orig := nowFunc
	defer func() { nowFunc = orig }()

	nowFunc = func() int64 { return 1700000000000 }
	g := &Generator{}
	a := g.Next()

	nowFunc = func() int64 { return 1700000000001 }
	b := g.Next()

	require.Less(t, a, b)
}
