package jsonvalue

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// String renders v the way a record value is shown to text search: numbers
// in shortest form, lists as comma-joined elements, dates in DateLayout and
// objects as an opaque marker.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return FormatDate(val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatDate(*val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = String(item)
		}
		return strings.Join(parts, ",")
	}

	switch Classify(v) {
	case KindInt, KindFloat:
		f, _ := ToFloat(v)
		if i, ok := ToInt64(v); ok {
			return strconv.FormatInt(i, 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case KindObject:
		return "[object Object]"
	case KindList:
		return String(Normalize(v))
	}
	return ""
}

// ToInt64 converts integral numbers to int64.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	}
	f, ok := ToFloat(v)
	if !ok || !isIntegral(f) || math.Abs(f) >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// Truthy reports whether v counts as a present value for text search.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// IDsEqual compares two identifiers by their string form, so 1 and "1" are
// the same id. A nil id never matches anything.
func IDsEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return String(a) == String(b)
}

// LooseEqual compares a stored value with a filter value. Numbers compare
// numerically against numbers and numeric strings, dates compare by
// instant, and remaining scalars compare by string form.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ka, kb := Classify(a), Classify(b)
	if isComposite(ka) && isComposite(kb) {
		return false
	}

	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Equal(tb)
		}
	}

	if isNumberKind(a) || isNumberKind(b) {
		fa, okA := toNumber(a)
		fb, okB := toNumber(b)
		return okA && okB && fa == fb
	}

	return String(a) == String(b)
}

// Compare orders a against b. Two strings compare lexically and anything
// else compares numerically. The boolean result is false when the values
// have no defined order, such as a missing value or a non-numeric string
// against a number.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	sa, aIsString := primitiveString(a)
	sb, bIsString := primitiveString(b)
	if aIsString && bIsString {
		return strings.Compare(sa, sb), true
	}

	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}

func primitiveString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []any:
		return String(val), true
	case map[string]any:
		return String(val), true
	}
	return "", false
}

func isComposite(k Kind) bool {
	return k == KindList || k == KindObject
}

func isNumberKind(v any) bool {
	switch v.(type) {
	case string, bool, nil:
		return false
	}
	_, ok := ToFloat(v)
	return ok
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val != nil {
			return *val, true
		}
	}
	return time.Time{}, false
}

// toNumber converts a scalar to a number for ordering. Dates become epoch
// milliseconds and booleans become 0 or 1.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	if t, ok := asTime(v); ok {
		return float64(t.UnixMilli()), true
	}
	f, ok := ToFloat(v)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
