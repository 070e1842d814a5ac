package swap

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// dateLayouts are the formats a date string may arrive in across sources.
// The bank files use ISO dates, the contract extractions use DD/MM/YYYY.
var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"2006/01/02",
}

// CanonicalDate parses s against the accepted layouts and returns it in
// DD/MM/YYYY form. ok is false when s is not a date in any layout.
func CanonicalDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006"), true
		}
	}
	return "", false
}

// NormalizedEqual reports whether two leaf values represent the same
// datum: numbers compare by value regardless of JSON decoding width,
// strings compare trimmed, and two strings that parse as the same date in
// different formats are equal. Sequences compare element-wise.
func NormalizedEqual(a, b any) bool {
	if na, aNum := asFloat(a); aNum {
		nb, bNum := asFloat(b)
		return bNum && na == nb
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return false
		}
		sa, sb = strings.TrimSpace(sa), strings.TrimSpace(sb)
		if sa == sb {
			return true
		}
		da, aDate := CanonicalDate(sa)
		db, bDate := CanonicalDate(sb)
		return aDate && bDate && da == db
	}
	if la, ok := a.([]any); ok {
		lb, ok := b.([]any)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !NormalizedEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Flatten converts a nested document value into dot-notation leaf paths,
// the same convention the comparison reports use: map keys join with ".",
// array elements append "[i]". Maps and arrays never appear as values in
// the result, only leaves.
func Flatten(value any, parent string) map[string]any {
	out := map[string]any{}
	flattenInto(out, value, parent)
	return out
}

func flattenInto(out map[string]any, value any, parent string) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			path := key
			if parent != "" {
				path = parent + "." + key
			}
			flattenInto(out, child, path)
		}
	case []any:
		for i, child := range v {
			flattenInto(out, child, fmt.Sprintf("%s[%d]", parent, i))
		}
	default:
		out[parent] = value
	}
}

// SortedPaths returns the flattened paths in deterministic order.
func SortedPaths(flat map[string]any) []string {
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
