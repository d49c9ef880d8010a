// Package jsonvalue classifies and compares the dynamic values held in data
// store records. Every stored value falls into one of a closed set of kinds,
// and all equality, ordering and string coercion used by inference and
// filtering goes through this package.
package jsonvalue

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind is the tagged classification of a record value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindList
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindDate:   "date",
	KindList:   "list",
	KindObject: "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// DateLayout is the only accepted textual date representation.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Classify returns the kind of v. Integral numbers classify as KindInt even
// when they are stored as floats, and strings that are exact ISO timestamps
// classify as KindDate.
func Classify(v any) Kind {
	switch val := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32:
		return classifyFloat(float64(val))
	case float64:
		return classifyFloat(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return classifyFloat(f)
		}
		return KindString
	case string:
		if IsISODate(val) {
			return KindDate
		}
		return KindString
	case time.Time:
		return KindDate
	case *time.Time:
		if val == nil {
			return KindNull
		}
		return KindDate
	case []any:
		return KindList
	case map[string]any:
		return KindObject
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return KindList
	case reflect.Map, reflect.Struct:
		return KindObject
	case reflect.Pointer:
		if rv.IsNil() {
			return KindNull
		}
		return Classify(rv.Elem().Interface())
	}
	return KindString
}

func classifyFloat(f float64) Kind {
	if isIntegral(f) {
		return KindInt
	}
	return KindFloat
}

func isIntegral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

// IsISODate reports whether s is a timestamp in DateLayout that survives a
// parse and format round trip unchanged.
func IsISODate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return false
	}
	return t.UTC().Format(DateLayout) == s
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses an exact DateLayout timestamp.
func ParseDate(s string) (time.Time, error) {
	if !IsISODate(s) {
		return time.Time{}, &time.ParseError{Layout: DateLayout, Value: s, Message: ": not an ISO-8601 timestamp with millisecond precision"}
	}
	return time.Parse(DateLayout, s)
}

// IsInteger reports whether v is a number with no fractional part. Numeric
// strings are not integers.
func IsInteger(v any) bool {
	return Classify(v) == KindInt
}

// IsNumeric reports whether v is a finite number or a string that parses as
// one.
func IsNumeric(v any) bool {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case bool, nil:
		return false
	}
	f, ok := ToFloat(v)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToFloat converts numeric values to float64.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
