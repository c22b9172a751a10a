package shape

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// coerceAnswer turns the common non-integer spellings of correctAnswer into
// an option index: "2", "B", "b)", "Option C", or the text of an option.
// Values it does not recognize are left for the schema to reject.
func coerceAnswer(v any, options any) (int, bool) {
	switch a := v.(type) {
	case json.Number, float64:
		return toInt(a)
	case string:
		s := strings.TrimSpace(a)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if idx, ok := letterIndex(s); ok {
			return idx, true
		}
		if opts, ok := options.([]any); ok {
			for i, o := range opts {
				if opt, ok := o.(string); ok && strings.EqualFold(strings.TrimSpace(opt), s) {
					return i, true
				}
			}
		}
	}
	return 0, false
}

func letterIndex(s string) (int, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "option ")
	s = strings.TrimRight(s, ").:")
	if len(s) != 1 {
		return 0, false
	}
	if s[0] >= 'a' && s[0] <= 'd' {
		return int(s[0] - 'a'), true
	}
	return 0, false
}

// toInt accepts integral numbers only, including "2.0".
func toInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		return n, true
	default:
		return 0, false
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// coerceOptionalString removes key when it holds something other than a string.
func coerceOptionalString(m map[string]any, key string, warns *[]Warning) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch v.(type) {
	case string:
	case nil:
		delete(m, key)
	default:
		delete(m, key)
		*warns = append(*warns, Warning{Field: key, Message: "not a string, ignored"})
	}
}

// coerceOptionalStrings normalizes key to a list of strings: a lone string
// becomes a one-element list, non-string entries are dropped, and anything
// else is removed.
func coerceOptionalStrings(m map[string]any, key string, warns *[]Warning) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch list := v.(type) {
	case nil:
		delete(m, key)
	case string:
		m[key] = []any{list}
		*warns = append(*warns, Warning{Field: key, Message: "expected a list, wrapped the string"})
	case []any:
		kept := make([]any, 0, len(list))
		for _, e := range list {
			if _, ok := e.(string); ok {
				kept = append(kept, e)
			}
		}
		if len(kept) != len(list) {
			*warns = append(*warns, Warning{Field: key, Message: "non-string entries dropped"})
		}
		m[key] = kept
	default:
		delete(m, key)
		*warns = append(*warns, Warning{Field: key, Message: "not a list, ignored"})
	}
}
