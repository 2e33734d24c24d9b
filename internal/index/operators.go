// Operator evaluation shared by index implementations and the query
// package's table-scan fallback (spec §6 "Operators"), grounded on the
// teacher's internal/query evaluator.go switch-over-operator shape.
package index

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// StandardOperators is the complete non-specialized operator set spec §4.9
// and §6 name.
var StandardOperators = map[string]bool{
	"<": true, "<=": true, "==": true, "!=": true, ">=": true, ">": true,
	"like": true, "!like": true,
	"in": true, "!in": true,
	"matches": true, "!matches": true,
	"between": true, "!between": true,
	"has": true, "!has": true,
	"contains": true, "!contains": true,
	"exists": true, "!exists": true,
}

// IsSpecialized reports whether op is a "<indexType>:<op>" specialized
// operator (spec §6), e.g. "fulltext:contains" or "geo:nearby".
func IsSpecialized(op string) bool {
	return strings.Contains(op, ":")
}

// Evaluate applies op to value against compare, per spec §6's operand
// constraints (in/!in non-empty list, between/!between two-element list,
// matches/!matches regex source+flags).
func Evaluate(value any, op string, compare any) (bool, error) {
	switch op {
	case "exists":
		return !isAbsent(value), nil
	case "!exists":
		return isAbsent(value), nil
	case "==":
		return equalValues(value, compare), nil
	case "!=":
		return !equalValues(value, compare), nil
	case "<":
		c, ok := compareOrdered(value, compare)
		return ok && c < 0, nil
	case "<=":
		c, ok := compareOrdered(value, compare)
		return ok && c <= 0, nil
	case ">":
		c, ok := compareOrdered(value, compare)
		return ok && c > 0, nil
	case ">=":
		c, ok := compareOrdered(value, compare)
		return ok && c >= 0, nil
	case "like", "!like":
		s, ok := value.(string)
		pattern, ok2 := compare.(string)
		match := ok && ok2 && globMatch(pattern, s)
		if op == "!like" {
			return !match, nil
		}
		return match, nil
	case "in", "!in":
		list, err := asList(compare)
		if err != nil {
			return false, fmt.Errorf("in/!in: %w", err)
		}
		if len(list) == 0 {
			return false, fmt.Errorf("in/!in: compare list must be non-empty")
		}
		found := false
		for _, c := range list {
			if equalValues(value, c) {
				found = true
				break
			}
		}
		if op == "!in" {
			return !found, nil
		}
		return found, nil
	case "matches", "!matches":
		re, err := compileMatch(compare)
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		match := ok && re.MatchString(s)
		if op == "!matches" {
			return !match, nil
		}
		return match, nil
	case "between", "!between":
		list, err := asList(compare)
		if err != nil || len(list) != 2 {
			return false, fmt.Errorf("between/!between: compare must be a 2-element list")
		}
		lo, okLo := compareOrdered(value, list[0])
		hi, okHi := compareOrdered(value, list[1])
		match := okLo && okHi && lo >= 0 && hi <= 0
		if op == "!between" {
			return !match, nil
		}
		return match, nil
	case "has", "!has":
		has := hasKey(value, compare)
		if op == "!has" {
			return !has, nil
		}
		return has, nil
	case "contains", "!contains":
		match := containsValue(value, compare)
		if op == "!contains" {
			return !match, nil
		}
		return match, nil
	default:
		if IsSpecialized(op) {
			return false, fmt.Errorf("specialized operator %q requires a matching index", op)
		}
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func isAbsent(v any) bool { return v == nil }

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// CompareOrdered exposes compareOrdered for the query planner's sort
// contract, which needs raw natural-ordering comparison outside of any
// operator evaluation.
func CompareOrdered(a, b any) (int, bool) {
	return compareOrdered(a, b)
}

// compareOrdered returns -1/0/1 comparing a against b, or ok=false if they
// aren't comparable. Numbers compare numerically, strings lexically, bools
// false<true.
func compareOrdered(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs), true
		}
		return 0, false
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			if ab == bb {
				return 0, true
			}
			if !ab && bb {
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func asList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case nil:
		return nil, fmt.Errorf("expected a list, got nil")
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

// globMatch supports '%'/'*' (any run of characters) and '_'/'?' (single
// character) the way SQL LIKE and shell globs do, whichever the caller
// used in the pattern.
func globMatch(pattern, s string) bool {
	pattern = strings.NewReplacer("%", "*", "_", "?").Replace(pattern)
	re := "^" + regexp.QuoteMeta(pattern) + "$"
	re = strings.ReplaceAll(re, `\*`, ".*")
	re = strings.ReplaceAll(re, `\?`, ".")
	ok, err := regexp.MatchString(re, s)
	return err == nil && ok
}

// compileMatch builds a regexp from a string pattern or a {source, flags}
// map (spec §6: "matches — regex with source and flags").
func compileMatch(compare any) (*regexp.Regexp, error) {
	switch c := compare.(type) {
	case string:
		return regexp.Compile(c)
	case map[string]any:
		source, _ := c["source"].(string)
		flags, _ := c["flags"].(string)
		prefix := ""
		if strings.Contains(flags, "i") {
			prefix += "i"
		}
		if strings.Contains(flags, "s") {
			prefix += "s"
		}
		if prefix != "" {
			source = "(?" + prefix + ")" + source
		}
		return regexp.Compile(source)
	default:
		return nil, fmt.Errorf("matches: compare must be a string or {source,flags} map")
	}
}

// hasKey reports whether value (an object) has the key named by compare.
func hasKey(value any, compare any) bool {
	key, ok := compare.(string)
	if !ok {
		return false
	}
	m, ok := value.(map[string]any)
	if !ok {
		return false
	}
	_, exists := m[key]
	return exists
}

// containsValue reports whether value contains compare: an array contains
// an element equal to compare, a string contains compare as a substring.
// A list-valued compare is matched as one element, not as a set of
// values, and binary ([]byte) values never match.
func containsValue(value any, compare any) bool {
	switch coll := value.(type) {
	case []any:
		for _, item := range coll {
			if equalValues(item, compare) {
				return true
			}
		}
		return false
	case string:
		s, ok := compare.(string)
		return ok && strings.Contains(coll, s)
	default:
		return false
	}
}
