package models

import (
	"fmt"
	"time"
)

// Filter is a set of field equality predicates applied to document metadata.
// A value that is a list matches when any element matches. Keys are not validated;
// a key the document does not carry never matches.
type Filter map[string]interface{}

// Matches reports whether doc satisfies every predicate in f. An empty filter matches everything.
func (f Filter) Matches(doc *Document) bool {
	for key, want := range f {
		got, ok := doc.Field(key)
		if !ok {
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

func matchValue(got, want interface{}) bool {
	switch w := want.(type) {
	case []interface{}:
		for _, v := range w {
			if valuesEqual(got, v) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range w {
			if valuesEqual(got, v) {
				return true
			}
		}
		return false
	}
	return valuesEqual(got, want)
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if t, ok := a.(time.Time); ok {
		if s, ok := b.(string); ok {
			parsed, err := time.Parse(time.RFC3339Nano, s)
			return err == nil && parsed.Equal(t)
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
