package jsonvalue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Kind
	}{
		{"nil", nil, KindNull},
		{"bool", true, KindBool},
		{"int", 12, KindInt},
		{"int64", int64(-4), KindInt},
		{"integral float", 3.0, KindInt},
		{"fraction", 3.5, KindFloat},
		{"json number int", json.Number("42"), KindInt},
		{"json number float", json.Number("4.2"), KindFloat},
		{"string", "hello", KindString},
		{"iso date string", "2017-07-24T13:54:11.000Z", KindDate},
		{"date without millis", "2017-07-24T13:54:11Z", KindString},
		{"impossible date", "2017-02-30T13:54:11.000Z", KindString},
		{"time", time.Now(), KindDate},
		{"list", []any{1, 2}, KindList},
		{"typed list", []string{"a"}, KindList},
		{"object", map[string]any{"a": 1}, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.value))
		})
	}
}

func TestIsISODate(t *testing.T) {
	assert.True(t, IsISODate("2020-01-01T00:00:00.000Z"))
	assert.False(t, IsISODate("2020-01-01"))
	assert.False(t, IsISODate("2020-01-01T00:00:00.000+01:00"))
	assert.False(t, IsISODate("x2020-01-01T00:00:00.000Z"))

	parsed, err := ParseDate("2020-01-01T10:11:12.345Z")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01T10:11:12.345Z", FormatDate(parsed))

	_, err = ParseDate("yesterday")
	assert.Error(t, err)
}

func TestNumericPredicates(t *testing.T) {
	assert.True(t, IsInteger(int64(1)))
	assert.True(t, IsInteger(2.0))
	assert.False(t, IsInteger(2.5))
	assert.False(t, IsInteger("2"))

	assert.True(t, IsNumeric(2.5))
	assert.True(t, IsNumeric("2.5"))
	assert.False(t, IsNumeric("abc"))
	assert.False(t, IsNumeric(""))
	assert.False(t, IsNumeric(true))
}

func TestString(t *testing.T) {
	assert.Equal(t, "1", String(int64(1)))
	assert.Equal(t, "1", String(1.0))
	assert.Equal(t, "1.5", String(1.5))
	assert.Equal(t, "true", String(true))
	assert.Equal(t, "a,1", String([]any{"a", int64(1)}))
	assert.Equal(t, "[object Object]", String(map[string]any{"a": 1}))
	assert.Equal(t, "2020-01-01T00:00:00.000Z", String(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIDsEqual(t *testing.T) {
	assert.True(t, IDsEqual(1, "1"))
	assert.True(t, IDsEqual(int64(123), 123.0))
	assert.True(t, IDsEqual("abc", "abc"))
	assert.False(t, IDsEqual(1, 2))
	assert.False(t, IDsEqual(nil, "undefined"))
	assert.False(t, IDsEqual(nil, nil))
}

func TestLooseEqual(t *testing.T) {
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, LooseEqual(int64(1), "1"))
	assert.True(t, LooseEqual(1, 1.0))
	assert.True(t, LooseEqual("foo", "foo"))
	assert.True(t, LooseEqual(date, date.In(time.FixedZone("x", 3600))))
	assert.True(t, LooseEqual("2020-01-01T00:00:00.000Z", date))
	assert.True(t, LooseEqual(nil, nil))
	assert.False(t, LooseEqual(nil, 0))
	assert.False(t, LooseEqual(int64(1), "one"))
	assert.False(t, LooseEqual([]any{1}, []any{1}))
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare(int64(2), 10)
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	cmp, ok = Compare("10", int64(9))
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	_, ok = Compare("abc", 1)
	assert.False(t, ok)

	_, ok = Compare(nil, 1)
	assert.False(t, ok)

	earlier := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cmp, ok = Compare(earlier, earlier.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(int64(0)))
	assert.True(t, Truthy(int64(3)))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy([]any{}))
}

func TestNormalize(t *testing.T) {
	input := map[any]any{
		"n":     json.Number("3"),
		"f":     json.Number("3.25"),
		"small": int8(2),
		"list":  []string{"a", "b"},
		"inner": map[string]any{"u": uint16(7)},
	}

	got := Normalize(input)
	assert.Equal(t, map[string]any{
		"n":     int64(3),
		"f":     3.25,
		"small": int64(2),
		"list":  []any{"a", "b"},
		"inner": map[string]any{"u": int64(7)},
	}, got)
}
