package path

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCanonical(t *testing.T) {
	p, err := Parse("users/alice/posts[3]/title")
	require.NoError(t, err)
	require.Equal(t, "users/alice/posts[3]/title", p.String())

	keys := p.Keys()
	require.Len(t, keys, 4)
	require.Equal(t, "users", keys[0].Name)
	require.Equal(t, "alice", keys[1].Name)
	require.Equal(t, "posts", keys[2].Name)
	require.True(t, keys[3].IsIndex)
	require.Equal(t, 3, keys[3].Index)
}

func TestParseRoot(t *testing.T) {
	p, err := Parse("")
	require.NoError(t, err)
	require.True(t, p.IsRoot())
	require.Equal(t, "", p.String())
}

func TestParseRejectsNegativeIndex(t *testing.T) {
	_, err := Parse("arr[-1]")
	require.Error(t, err)
}

func TestParseRejectsInvalidChars(t *testing.T) {
	_, err := Parse("a/b]c/d")
	require.Error(t, err)
}

func TestAncestryRelations(t *testing.T) {
	a := MustParse("users/alice")
	b := MustParse("users/alice/posts")
	c := MustParse("users/alice/posts[0]/title")

	require.True(t, IsAncestorOf(a, b))
	require.True(t, IsAncestorOf(a, c))
	require.True(t, IsDescendantOf(c, a))
	require.True(t, IsChildOf(b, a))
	require.True(t, IsParentOf(a, b))
	require.False(t, IsChildOf(c, a))
	require.False(t, IsAncestorOf(b, a))
}

func TestIsOnTrailOfWithWildcards(t *testing.T) {
	pattern := MustParse("users/*/posts")
	concrete := MustParse("users/alice/posts")
	require.True(t, IsOnTrailOf(pattern, concrete))
	require.True(t, IsOnTrailOf(concrete, pattern))

	deeper := MustParse("users/alice/posts/p1/title")
	require.True(t, IsOnTrailOf(pattern, deeper))

	other := MustParse("groups/alice/posts")
	require.False(t, IsOnTrailOf(pattern, other))
}

func TestMatchesWildcard(t *testing.T) {
	pattern := MustParse("users/$uid/posts")
	require.True(t, Matches(pattern, MustParse("users/alice/posts")))
	require.False(t, Matches(pattern, MustParse("users/alice/posts/extra")))
	require.False(t, Matches(pattern, MustParse("groups/alice/posts")))
}

func TestExtractVariables(t *testing.T) {
	pattern := MustParse("users/$uid/posts")
	concrete := MustParse("users/alice/posts")

	vars, err := ExtractVariables(pattern, concrete)
	require.NoError(t, err)
	require.Equal(t, "alice", vars.Named["uid"])
	require.Equal(t, "alice", vars.Named["$uid"])
	require.Equal(t, "alice", vars.Positional[1])
}

func TestFillVariables(t *testing.T) {
	pattern := MustParse("users/*/posts")
	concrete := MustParse("users/alice/posts")

	filled, err := FillVariables(pattern, concrete)
	require.NoError(t, err)
	require.Equal(t, "users/alice/posts", filled.String())
}

func TestFillVariables2(t *testing.T) {
	pattern := MustParse("users/$uid/posts")
	vars := Variables{Named: map[string]string{"uid": "bob"}, Positional: []string{"", "bob", ""}}

	filled, err := FillVariables2(pattern, vars)
	require.NoError(t, err)
	require.Equal(t, "users/bob/posts", filled.String())
}

func TestParentAndChild(t *testing.T) {
	p := MustParse("a/b/c")
	require.Equal(t, "a/b", p.Parent().String())
	require.Equal(t, "a/b/c/d", p.Child("d").String())
	require.Equal(t, "a/b/c[5]", p.ChildIndex(5).String())
	require.Equal(t, "", Root.Parent().String())
}

func TestCompareLexical(t *testing.T) {
	a := MustParse("a/b")
	b := MustParse("a/c")
	require.True(t, Compare(a, b) < 0)
	require.Equal(t, 0, Compare(a, a))
}
