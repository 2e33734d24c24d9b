// Package valuecodec classifies and (de)serializes the nine node value
// kinds the engine supports, and decides whether a value is small enough
// to live inline inside its parent's stored record (spec §3, §4.2).
package valuecodec

import (
	"encoding/ascii85"
	"fmt"
	"sort"
	"time"

	"github.com/acebase-go/acebase/internal/acebaseerr"
)

// Kind is one of the nine node value kinds.
type Kind int

const (
	KindObject Kind = iota + 1
	KindArray
	KindNumber
	KindBoolean
	KindString
	KindDateTime
	KindBinary
	KindReference
	KindAbsent
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindDateTime:
		return "datetime"
	case KindBinary:
		return "binary"
	case KindReference:
		return "reference"
	default:
		return "absent"
	}
}

// PathReference is a value that points at another path in the tree. It is
// stored as an absolute path string and never participates in ownership.
type PathReference string

// Reference is an alias kept for call-site clarity.
type Reference = PathReference

// TaggedChild is the on-disk encoding of a non-string/number scalar or an
// empty composite child stored inline: {type, value}.
type TaggedChild struct {
	Type  Kind
	Value any
}

// MaxInlineValueSizeDefault is the default max_inline_value_size (bytes).
const MaxInlineValueSizeDefault = 50

// Classify returns the value kind of v.
func Classify(v any) (Kind, error) {
	switch val := v.(type) {
	case nil:
		return KindAbsent, nil
	case map[string]any:
		return KindObject, nil
	case []any:
		return KindArray, nil
	case string:
		return KindString, nil
	case bool:
		return KindBoolean, nil
	case int, int32, int64, float32, float64:
		return KindNumber, nil
	case time.Time:
		return KindDateTime, nil
	case []byte:
		return KindBinary, nil
	case PathReference:
		return KindReference, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", acebaseerr.ErrInvalidValue, val)
	}
}

// SerializedSize estimates the number of bytes v would occupy if stored,
// per the rules in spec §4.2: UTF-8 byte length for strings/references,
// byte length for binary, zero for empty composites, and a fixed size for
// scalars/dates/booleans. Non-empty composites return a size guaranteed to
// exceed any max_inline_value_size so FitsInline always rejects them.
func SerializedSize(v any) (int, error) {
	kind, err := Classify(v)
	if err != nil {
		return 0, err
	}
	switch kind {
	case KindAbsent:
		return 0, nil
	case KindString:
		return len(v.(string)), nil
	case KindReference:
		return len(string(v.(PathReference))), nil
	case KindBinary:
		return len(v.([]byte)), nil
	case KindBoolean:
		return 1, nil
	case KindNumber:
		return 8, nil
	case KindDateTime:
		return 8, nil
	case KindObject:
		m := v.(map[string]any)
		if len(m) == 0 {
			return 0, nil
		}
		return 1 << 30, nil
	case KindArray:
		a := v.([]any)
		if len(a) == 0 {
			return 0, nil
		}
		return 1 << 30, nil
	default:
		return 0, fmt.Errorf("%w: cannot size kind %v", acebaseerr.ErrInvalidValue, kind)
	}
}

// FitsInline reports whether v is small enough (<= maxInlineSize bytes,
// per SerializedSize) to live inside its parent's stored record. Composite
// values with contents are never inline; empty composites always are.
func FitsInline(v any, maxInlineSize int) (bool, error) {
	size, err := SerializedSize(v)
	if err != nil {
		return false, err
	}
	return size <= maxInlineSize, nil
}

// EncodeInline converts v to its inline on-wire representation. Strings
// and numbers are stored natively; every other kind is wrapped in a
// TaggedChild carrying its kind code so Decode can rehydrate it without
// relying on Go's dynamic type alone (dates would otherwise be
// indistinguishable from numbers, binary from strings, etc).
func EncodeInline(v any) (any, error) {
	kind, err := Classify(v)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindString, KindNumber:
		return v, nil
	case KindBoolean:
		return TaggedChild{Type: KindBoolean, Value: v}, nil
	case KindDateTime:
		t := v.(time.Time)
		return TaggedChild{Type: KindDateTime, Value: t.UnixMilli()}, nil
	case KindBinary:
		b := v.([]byte)
		encoded := make([]byte, ascii85.MaxEncodedLen(len(b)))
		n := ascii85.Encode(encoded, b)
		return TaggedChild{Type: KindBinary, Value: string(encoded[:n])}, nil
	case KindReference:
		return TaggedChild{Type: KindReference, Value: string(v.(PathReference))}, nil
	case KindObject, KindArray:
		// Only reachable for empty composites (FitsInline excludes
		// non-empty ones); store the empty shell with its kind tag so
		// DecodeInline can tell an empty object from an empty array.
		return TaggedChild{Type: kind, Value: v}, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode kind %v inline", acebaseerr.ErrInvalidValue, kind)
	}
}

// DecodeInline reverses EncodeInline. Ordinary maps/lists recurse through
// Decode; a TaggedChild with a recognized kind is rehydrated to its
// native Go value.
func DecodeInline(raw any) (any, error) {
	switch v := raw.(type) {
	case TaggedChild:
		return decodeTagged(v)
	case map[string]any:
		// A plain map may itself encode a {type, value} pair that was
		// round-tripped through a backend's own JSON/bincode layer rather
		// than held as a native TaggedChild value.
		if t, val, ok := asTaggedMap(v); ok {
			return decodeTagged(TaggedChild{Type: t, Value: val})
		}
		return Decode(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			d, err := DecodeInline(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	default:
		return raw, nil
	}
}

func asTaggedMap(m map[string]any) (Kind, any, bool) {
	if len(m) != 2 {
		return 0, nil, false
	}
	rawType, hasType := m["type"]
	val, hasValue := m["value"]
	if !hasType || !hasValue {
		return 0, nil, false
	}
	var kind Kind
	switch t := rawType.(type) {
	case Kind:
		kind = t
	case int:
		kind = Kind(t)
	case float64:
		kind = Kind(int(t))
	default:
		return 0, nil, false
	}
	if kind < KindObject || kind > KindReference {
		return 0, nil, false
	}
	return kind, val, true
}

func decodeTagged(tc TaggedChild) (any, error) {
	switch tc.Type {
	case KindBoolean:
		b, _ := tc.Value.(bool)
		return b, nil
	case KindDateTime:
		ms, err := asInt64(tc.Value)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case KindBinary:
		s, _ := tc.Value.(string)
		decoded := make([]byte, len(s))
		n, _, err := ascii85.Decode(decoded, []byte(s), true)
		if err != nil {
			return nil, fmt.Errorf("%w: bad ascii85 binary: %v", acebaseerr.ErrInvalidValue, err)
		}
		return decoded[:n], nil
	case KindReference:
		s, _ := tc.Value.(string)
		return PathReference(s), nil
	case KindObject:
		m, _ := tc.Value.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		return Decode(m)
	case KindArray:
		a, _ := tc.Value.([]any)
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized tag kind %v", acebaseerr.ErrInvalidValue, tc.Type)
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected numeric epoch-ms, got %T", acebaseerr.ErrInvalidValue, v)
	}
}

// Decode recursively rehydrates a flat map-of-key-to-child (as loaded from
// a StoredRecord's Value) into native Go values, including nested
// composites.
func Decode(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		d, err := DecodeInline(v)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

// SortedKeys returns m's keys in deterministic order, used whenever a
// composite must be walked in a stable sequence (e.g. array assembly).
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmptyComposite reports whether v is a zero-length object or array.
func IsEmptyComposite(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}
