package resolver

import (
	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/query"

	"github.com/graphql-go/graphql"
)

func (r *Resolver) makeSingleResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.query.get", coll)
		defer span.finish(p.Context, &err)

		id, ok := p.Args["id"]
		if !ok || id == nil {
			span.matched(false)
			return nil, nil
		}
		c, ok := r.collection(coll.Key)
		if !ok {
			span.matched(false)
			return nil, nil
		}
		record, ok := c.Find(id)
		span.matched(ok)
		if !ok {
			return nil, nil
		}
		return record, nil
	}
}

func (r *Resolver) makeListResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.query.list", coll)
		defer span.finish(p.Context, &err)

		c, ok := r.collection(coll.Key)
		if !ok {
			span.count(0)
			return []datastore.Record{}, nil
		}

		items := query.List(c.Records(), listArgs(p.Args))
		span.count(len(items))
		return items, nil
	}
}

// makeMetaResolver counts the records matching the filter. Pagination
// arguments are accepted but do not narrow the count.
func (r *Resolver) makeMetaResolver(coll *introspection.Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		span := startCollectionSpan(p, "graphql.query.meta", coll)
		defer span.finish(p.Context, &err)

		count := 0
		if c, ok := r.collection(coll.Key); ok {
			filter, _ := p.Args["filter"].(map[string]interface{})
			count = query.Count(c.Records(), filter)
		}
		span.count(count)
		return map[string]interface{}{"count": count}, nil
	}
}

func listArgs(args map[string]interface{}) query.ListArgs {
	out := query.ListArgs{
		PerPage:   query.DefaultPerPage,
		SortOrder: query.SortAsc,
	}
	if page, ok := optionalIntArg(args, "page"); ok {
		out.Page = &page
	}
	if perPage, ok := optionalIntArg(args, "perPage"); ok {
		out.PerPage = perPage
	}
	if field, ok := args["sortField"].(string); ok {
		out.SortField = field
	}
	if order, ok := args["sortOrder"].(string); ok {
		out.SortOrder = order
	}
	if filter, ok := args["filter"].(map[string]interface{}); ok {
		out.Filter = filter
	}
	return out
}

func optionalIntArg(args map[string]interface{}, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	v, ok := args[key].(int)
	return v, ok
}
