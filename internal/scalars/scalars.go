package scalars

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

var (
	dateScalar = newDate()
	jsonScalar = newJSON()
)

// Date returns the shared Date scalar. A schema may only hold one type per
// name, so every builder uses the same instance.
func Date() *graphql.Scalar {
	return dateScalar
}

// JSON returns the shared JSON scalar.
func JSON() *graphql.Scalar {
	return jsonScalar
}

func newDate() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Date",
		Description: "Date value serialized as an ISO-8601 timestamp with millisecond precision, e.g. 2017-07-03T00:00:00.000Z.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case string:
				if jsonvalue.IsISODate(v) {
					return v
				}
			case time.Time:
				return jsonvalue.FormatDate(v)
			case *time.Time:
				if v != nil {
					return jsonvalue.FormatDate(*v)
				}
			}
			slog.Default().Debug("value is not a valid date", slog.Any("value", value))
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case string:
				if parsed, err := jsonvalue.ParseDate(v); err == nil {
					return parsed
				}
				return nil
			case time.Time:
				return v.UTC()
			}
			if ms, ok := jsonvalue.ToFloat(value); ok && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
				return time.UnixMilli(int64(ms)).UTC()
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			sv, ok := valueAST.(*ast.StringValue)
			if !ok {
				return nil
			}
			parsed, err := jsonvalue.ParseDate(sv.Value)
			if err != nil {
				return nil
			}
			return parsed
		},
	})
}

func newJSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value.",
		Serialize: func(value interface{}) interface{} {
			if t, ok := value.(time.Time); ok {
				return jsonvalue.FormatDate(t)
			}
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return jsonvalue.Normalize(value)
		},
		ParseLiteral: parseJSONLiteral,
	})
}

// parseJSONLiteral converts an inline literal into plain Go values.
// Variables nested inside a literal are not resolved.
func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		if i, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, parseJSONLiteral(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			if field == nil || field.Name == nil {
				continue
			}
			out[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return out
	default:
		return nil
	}
}
