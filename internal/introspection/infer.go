package introspection

import (
	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"
)

// BaseType is the named GraphQL type a field resolves to.
type BaseType string

const (
	TypeID      BaseType = "ID"
	TypeBoolean BaseType = "Boolean"
	TypeInt     BaseType = "Int"
	TypeFloat   BaseType = "Float"
	TypeString  BaseType = "String"
	TypeDate    BaseType = "Date"
	TypeJSON    BaseType = "JSON"
)

// FieldType is a base type, optionally wrapped in a list.
type FieldType struct {
	Base BaseType
	List bool
}

// String renders the type in SDL notation without the non-null marker.
func (t FieldType) String() string {
	if t.List {
		return "[" + string(t.Base) + "]"
	}
	return string(t.Base)
}

// Ordered reports whether range filters apply to the type.
func (t FieldType) Ordered() bool {
	if t.List {
		return false
	}
	switch t.Base {
	case TypeString, TypeInt, TypeFloat, TypeDate:
		return true
	}
	return false
}

// Equatable reports whether the _neq filter applies to the type.
func (t FieldType) Equatable() bool {
	return !t.List && t.Base != TypeBoolean
}

// Field describes one inferred record field.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Fallback is set when no rule matched the sampled values and the
	// field defaulted to String.
	Fallback bool
}

// InferType infers the type of a field from its name and sampled non-null
// values. The first matching rule wins:
//
//  1. id or *_id names are ID
//  2. lists infer their flattened leaf values
//  3. Boolean, 4. Date, 5. String, 6. Int, 7. Float, 8. JSON
//
// Anything else falls back to String and reports fallback.
func InferType(name string, values []any) (t FieldType, fallback bool) {
	if naming.IsIDField(name) {
		return FieldType{Base: TypeID}, false
	}
	if len(values) == 0 {
		return FieldType{Base: TypeString}, true
	}

	if all(values, isList) {
		var leaves []any
		for _, v := range values {
			leaves = append(leaves, v.([]any)...)
		}
		if base, ok := inferScalar(leaves); ok {
			return FieldType{Base: base, List: true}, false
		}
		if all(leaves, isObject) {
			return FieldType{Base: TypeJSON}, false
		}
		return FieldType{Base: TypeString, List: true}, false
	}

	if base, ok := inferScalar(values); ok {
		return FieldType{Base: base}, false
	}
	if all(values, isObject) {
		return FieldType{Base: TypeJSON}, false
	}
	return FieldType{Base: TypeString}, true
}

// InferField infers a field and marks it required when requested.
func InferField(name string, values []any, required bool) Field {
	t, fallback := InferType(name, values)
	return Field{Name: name, Type: t, Required: required, Fallback: fallback}
}

// FieldsFromRecords infers every field of a collection. A field is required
// only when every record holds a non-null value for it.
func FieldsFromRecords(records []map[string]any) []Field {
	samples := ValuesFromRecords(records)
	fields := make([]Field, 0, len(samples))
	for _, s := range samples {
		required := len(records) > 0 && len(s.Values) == len(records)
		fields = append(fields, InferField(s.Name, s.Values, required))
	}
	return fields
}

// inferScalar applies the boolean, date, string, integer and numeric rules
// in order. An empty set matches the first rule.
func inferScalar(values []any) (BaseType, bool) {
	switch {
	case all(values, isBool):
		return TypeBoolean, true
	case all(values, isDate):
		return TypeDate, true
	case all(values, isString):
		return TypeString, true
	case all(values, jsonvalue.IsInteger):
		return TypeInt, true
	case all(values, jsonvalue.IsNumeric):
		return TypeFloat, true
	}
	return "", false
}

func all(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isBool(v any) bool {
	return jsonvalue.Classify(v) == jsonvalue.KindBool
}

func isDate(v any) bool {
	return jsonvalue.Classify(v) == jsonvalue.KindDate
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isObject(v any) bool {
	return jsonvalue.Classify(v) == jsonvalue.KindObject
}
