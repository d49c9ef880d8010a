package resolver

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

func (r *Resolver) makeCreateResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.mutation.create", coll)
		defer span.finish(p.Context, &err)

		c, ok := r.collection(coll.Key)
		if !ok {
			return nil, fmt.Errorf("unknown collection %q", coll.Key)
		}
		record := r.create(c, p.Args)
		MutationContextFromContext(p.Context).Record(Change{Collection: coll.Key, Kind: ChangeCreate, ID: record["id"]})
		return record, nil
	}
}

func (r *Resolver) makeCreateManyResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.mutation.create_many", coll)
		defer span.finish(p.Context, &err)

		c, ok := r.collection(coll.Key)
		if !ok {
			return nil, fmt.Errorf("unknown collection %q", coll.Key)
		}

		data, _ := p.Args["data"].([]interface{})
		created := make([]datastore.Record, 0, len(data))
		mc := MutationContextFromContext(p.Context)
		for _, item := range data {
			fields, _ := item.(map[string]interface{})
			record := r.create(c, fields)
			mc.Record(Change{Collection: coll.Key, Kind: ChangeCreate, ID: record["id"]})
			created = append(created, record)
		}
		span.count(len(created))
		return created, nil
	}
}

// makeUpdateResolver merges the provided fields onto the record with the
// given id. A field explicitly set to null is removed from the record.
func (r *Resolver) makeUpdateResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.mutation.update", coll)
		defer span.finish(p.Context, &err)

		c, idx := r.locate(coll, p.Args)
		span.matched(idx >= 0)
		if idx < 0 {
			return nil, nil
		}
		existing, err := c.At(idx)
		if err != nil {
			return nil, err
		}

		merged := make(datastore.Record, len(existing)+len(p.Args))
		for k, v := range existing {
			merged[k] = v
		}
		for k, v := range p.Args {
			if k == "id" {
				continue
			}
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = normalizeArg(v)
		}
		for _, k := range explicitNullArgs(p) {
			if k != "id" {
				delete(merged, k)
			}
		}

		if err := c.ReplaceAt(idx, merged); err != nil {
			return nil, err
		}
		MutationContextFromContext(p.Context).Record(Change{Collection: coll.Key, Kind: ChangeUpdate, ID: merged["id"]})
		return merged, nil
	}
}

func (r *Resolver) makeRemoveResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.mutation.remove", coll)
		defer span.finish(p.Context, &err)

		c, idx := r.locate(coll, p.Args)
		span.matched(idx >= 0)
		if idx < 0 {
			return nil, nil
		}
		removed, err := c.RemoveAt(idx)
		if err != nil {
			return nil, err
		}
		MutationContextFromContext(p.Context).Record(Change{Collection: coll.Key, Kind: ChangeRemove, ID: removed["id"]})
		return removed, nil
	}
}

// locate finds the record addressed by the id argument. The index is -1
// when the argument is missing or null or no record has that id.
func (r *Resolver) locate(coll *introspection.Collection, args map[string]interface{}) (*datastore.Collection, int) {
	id, ok := args["id"]
	if !ok || id == nil {
		return nil, -1
	}
	c, ok := r.collection(coll.Key)
	if !ok {
		return nil, -1
	}
	return c, c.IndexOf(id)
}

// create appends a record built from fields with a freshly allocated id.
// A caller-provided id is ignored.
func (r *Resolver) create(c *datastore.Collection, fields map[string]interface{}) datastore.Record {
	record := datastore.Record{"id": NextID(c)}
	for k, v := range fields {
		if k == "id" || v == nil {
			continue
		}
		record[k] = normalizeArg(v)
	}
	c.Append(record)
	return record
}

// NextID returns the id for a record appended to c: the last record's id
// plus one, or 0 for an empty collection. Numeric string ids stay strings;
// other string ids get "1" appended. When the last record has no usable id
// the collection length is used.
func NextID(c *datastore.Collection) any {
	last, ok := c.Last()
	if !ok {
		return int64(0)
	}

	switch id := last["id"].(type) {
	case nil:
		return int64(c.Len())
	case string:
		if i, err := strconv.ParseInt(id, 10, 64); err == nil && i < math.MaxInt64 {
			return strconv.FormatInt(i+1, 10)
		}
		if f, err := strconv.ParseFloat(id, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return strconv.FormatFloat(f+1, 'f', -1, 64)
		}
		return id + "1"
	}

	id := last["id"]
	if i, ok := jsonvalue.ToInt64(id); ok && i < math.MaxInt64 {
		return i + 1
	}
	if f, ok := jsonvalue.ToFloat(id); ok {
		return f + 1
	}
	return int64(c.Len())
}

// normalizeArg converts a coerced GraphQL argument into a stored record
// value. Dates are stored in their ISO string form.
func normalizeArg(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return jsonvalue.FormatDate(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeArg(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeArg(item)
		}
		return out
	}
	return jsonvalue.Normalize(v)
}

// explicitNullArgs returns the arguments written in the operation whose value
// is null: a null literal, or a variable the client sent as null. The
// executor omits both from p.Args, so they are recovered from the field AST.
// A variable the client left out is not null; the field keeps its value.
func explicitNullArgs(p graphql.ResolveParams) []string {
	field := firstFieldAST(p.Info.FieldASTs)
	if field == nil {
		return nil
	}
	var out []string
	for _, arg := range field.Arguments {
		if arg == nil || arg.Name == nil {
			continue
		}
		name := arg.Name.Value
		if _, ok := p.Args[name]; ok {
			continue
		}
		if variable, ok := arg.Value.(*ast.Variable); ok {
			if variable.Name == nil || !gqlrequest.VariableSentAsNull(p.Context, variable.Name.Value) {
				continue
			}
		}
		out = append(out, name)
	}
	return out
}

func firstFieldAST(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}
