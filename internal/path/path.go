// Package path implements path parsing, matching and manipulation for the
// slash-separated, wildcard-aware hierarchical paths the engine addresses
// nodes by (spec §3, §4.1).
package path

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acebase-go/acebase/internal/acebaseerr"
)

// Key is a single path segment: either a string key (possibly a wildcard,
// "*" or "$name") or a non-negative array index.
type Key struct {
	Name     string
	Index    int
	IsIndex  bool
	Wildcard bool // true for "*" or "$name"
}

func StringKey(s string) Key {
	return Key{Name: s, Wildcard: s == "*" || strings.HasPrefix(s, "$")}
}

func IndexKey(i int) Key {
	return Key{Index: i, IsIndex: true}
}

func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return k.Name
}

// Path is the parsed, canonical form of a hierarchical path.
type Path struct {
	keys []Key
}

// Root is the empty path.
var Root = Path{}

// Parse splits a canonical textual path ("users/alice/posts[3]/title")
// into its key sequence. Array indices are written "[n]" with no slash
// before the bracket; wildcards are "*" or a "$"-prefixed name.
func Parse(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Root, nil
	}
	var keys []Key
	for _, rawSeg := range splitSegments(s) {
		segKeys, err := parseSegment(rawSeg)
		if err != nil {
			return Path{}, err
		}
		keys = append(keys, segKeys...)
	}
	return Path{keys: keys}, nil
}

// MustParse panics on error; used for compile-time-known literal paths.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// splitSegments splits on '/' while keeping "[n]" attached to the
// preceding key (no slash ever precedes '[').
func splitSegments(s string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	out = append(out, cur.String())
	return out
}

func parseSegment(seg string) ([]Key, error) {
	if seg == "" {
		return nil, fmt.Errorf("%w: empty path segment", acebaseerr.ErrInvalidArgument)
	}
	var keys []Key
	// Split the leading key name from any number of trailing "[n]" groups.
	i := strings.IndexByte(seg, '[')
	head := seg
	rest := ""
	if i >= 0 {
		head = seg[:i]
		rest = seg[i:]
	}
	if head != "" {
		if err := validateLiteralKey(head); err != nil {
			return nil, err
		}
		keys = append(keys, StringKey(head))
	}
	for len(rest) > 0 {
		if rest[0] != '[' {
			return nil, fmt.Errorf("%w: malformed array index in %q", acebaseerr.ErrInvalidArgument, seg)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated array index in %q", acebaseerr.ErrInvalidArgument, seg)
		}
		numStr := rest[1:end]
		n, err := strconv.Atoi(numStr)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: negative or non-numeric array index %q", acebaseerr.ErrInvalidArgument, numStr)
		}
		keys = append(keys, IndexKey(n))
		rest = rest[end+1:]
	}
	if head == "" && len(keys) == 0 {
		return nil, fmt.Errorf("%w: segment %q has no key", acebaseerr.ErrInvalidArgument, seg)
	}
	return keys, nil
}

func validateLiteralKey(k string) error {
	if k == "*" {
		return nil
	}
	if strings.HasPrefix(k, "$") {
		return nil
	}
	if strings.ContainsAny(k, "/[]") {
		return fmt.Errorf("%w: invalid characters in key %q", acebaseerr.ErrInvalidArgument, k)
	}
	return nil
}

// Keys returns the canonical key sequence.
func (p Path) Keys() []Key { return p.keys }

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool { return len(p.keys) == 0 }

// String renders the canonical textual form.
func (p Path) String() string {
	if p.IsRoot() {
		return ""
	}
	var b strings.Builder
	for i, k := range p.keys {
		if k.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(k.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(k.Name)
	}
	return b.String()
}

// Child returns the path of a direct child under the given key name.
func (p Path) Child(key string) Path {
	keys := append(append([]Key{}, p.keys...), StringKey(key))
	return Path{keys: keys}
}

// ChildIndex returns the path of a direct array-index child.
func (p Path) ChildIndex(i int) Path {
	keys := append(append([]Key{}, p.keys...), IndexKey(i))
	return Path{keys: keys}
}

// Parent returns the parent path. Calling Parent on the root returns the
// root itself.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return Root
	}
	return Path{keys: append([]Key{}, p.keys[:len(p.keys)-1]...)}
}

// LastKey returns the final key in the path; zero value if root.
func (p Path) LastKey() Key {
	if p.IsRoot() {
		return Key{}
	}
	return p.keys[len(p.keys)-1]
}

// Equals reports structural equality (wildcards compared literally, not
// matched).
func Equals(a, b Path) bool {
	if len(a.keys) != len(b.keys) {
		return false
	}
	for i := range a.keys {
		if !keyEquals(a.keys[i], b.keys[i]) {
			return false
		}
	}
	return true
}

func keyEquals(a, b Key) bool {
	if a.IsIndex != b.IsIndex {
		return false
	}
	if a.IsIndex {
		return a.Index == b.Index
	}
	return a.Name == b.Name
}

// IsAncestorOf reports whether a is a strict ancestor of b.
func IsAncestorOf(a, b Path) bool {
	if len(a.keys) >= len(b.keys) {
		return false
	}
	for i := range a.keys {
		if !keyEquals(a.keys[i], b.keys[i]) {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether a is a strict descendant of b.
func IsDescendantOf(a, b Path) bool { return IsAncestorOf(b, a) }

// IsChildOf reports whether a is a direct child of b.
func IsChildOf(a, b Path) bool {
	return len(a.keys) == len(b.keys)+1 && IsAncestorOf(b, a)
}

// IsParentOf reports whether a is the direct parent of b.
func IsParentOf(a, b Path) bool { return IsChildOf(b, a) }

// IsOnTrailOf reports whether a and b lie on the same root-to-leaf line:
// one is an ancestor (or equal, under wildcard matching) of the other,
// where wildcard keys match any single concrete key.
func IsOnTrailOf(a, b Path) bool {
	n := len(a.keys)
	if len(b.keys) < n {
		n = len(b.keys)
	}
	for i := 0; i < n; i++ {
		if !keyMatches(a.keys[i], b.keys[i]) {
			return false
		}
	}
	return true
}

// keyMatches reports whether two keys match, where a wildcard on either
// side matches any single concrete key of the same index-ness.
func keyMatches(a, b Key) bool {
	if a.IsIndex != b.IsIndex {
		return false
	}
	if a.IsIndex {
		return a.Index == b.Index
	}
	if a.Wildcard || b.Wildcard {
		return true
	}
	return a.Name == b.Name
}

// Matches reports whether concrete path c satisfies pattern p, where p may
// contain wildcard keys. Both paths must have equal length: wildcards never
// span multiple keys.
func Matches(pattern, concrete Path) bool {
	if len(pattern.keys) != len(concrete.keys) {
		return false
	}
	for i := range pattern.keys {
		pk, ck := pattern.keys[i], concrete.keys[i]
		if pk.IsIndex != ck.IsIndex {
			return false
		}
		if pk.IsIndex {
			if pk.Index != ck.Index {
				return false
			}
			continue
		}
		if pk.Wildcard {
			continue
		}
		if pk.Name != ck.Name {
			return false
		}
	}
	return true
}

// Variables holds both positional and named wildcard bindings extracted by
// ExtractVariables.
type Variables struct {
	Positional []string
	Named      map[string]string
}

// ExtractVariables binds each wildcard key in pattern to the corresponding
// concrete key in concrete, returning both a positional slice (indexed by
// the wildcard's position among ALL pattern keys, matching the source
// project's {0:"alice", uid:"alice", $uid:"alice"} shape) and a name-keyed
// map for "$name" wildcards (bound under both "name" and "$name").
func ExtractVariables(pattern, concrete Path) (Variables, error) {
	if len(pattern.keys) != len(concrete.keys) {
		return Variables{}, fmt.Errorf("%w: pattern/path length mismatch", acebaseerr.ErrInvalidArgument)
	}
	vars := Variables{Named: map[string]string{}}
	for i, pk := range pattern.keys {
		ck := concrete.keys[i]
		if !pk.Wildcard {
			continue
		}
		val := ck.String()
		for len(vars.Positional) <= i {
			vars.Positional = append(vars.Positional, "")
		}
		vars.Positional[i] = val
		if strings.HasPrefix(pk.Name, "$") {
			name := strings.TrimPrefix(pk.Name, "$")
			vars.Named[name] = val
			vars.Named[pk.Name] = val
		}
	}
	return vars, nil
}

// FillVariables substitutes each wildcard key in pattern, in order, with
// the corresponding key from concretePath (taken positionally).
func FillVariables(pattern Path, concretePath Path) (Path, error) {
	if len(pattern.keys) != len(concretePath.keys) {
		return Path{}, fmt.Errorf("%w: pattern/path length mismatch", acebaseerr.ErrInvalidArgument)
	}
	out := make([]Key, len(pattern.keys))
	for i, pk := range pattern.keys {
		if pk.Wildcard {
			out[i] = concretePath.keys[i]
		} else {
			out[i] = pk
		}
	}
	return Path{keys: out}, nil
}

// FillVariables2 substitutes wildcards using a Variables binding produced
// by ExtractVariables (matched positionally, falling back to name lookup
// for "$name" wildcards).
func FillVariables2(pattern Path, vars Variables) (Path, error) {
	out := make([]Key, len(pattern.keys))
	for i, pk := range pattern.keys {
		if !pk.Wildcard {
			out[i] = pk
			continue
		}
		var val string
		if i < len(vars.Positional) && vars.Positional[i] != "" {
			val = vars.Positional[i]
		} else if strings.HasPrefix(pk.Name, "$") {
			val = vars.Named[strings.TrimPrefix(pk.Name, "$")]
		}
		if n, err := strconv.Atoi(val); err == nil && pk.IsIndex {
			out[i] = IndexKey(n)
		} else {
			out[i] = StringKey(val)
		}
	}
	return Path{keys: out}, nil
}

// Compare orders two concrete paths for deterministic tie-breaking
// (lexical by canonical string form).
func Compare(a, b Path) int {
	return strings.Compare(a.String(), b.String())
}
