package resolver

import (
	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/jsonvalue"

	"github.com/graphql-go/graphql"
)

// makeForwardResolver resolves the record a foreign key points at, e.g.
// Post.User from posts.user_id.
func (r *Resolver) makeForwardResolver(rel introspection.Relationship) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		source, ok := p.Source.(datastore.Record)
		if !ok {
			return nil, nil
		}
		fk, ok := source[rel.ForeignKey]
		if !ok || fk == nil {
			return nil, nil
		}
		related, ok := r.collection(rel.RelatedKey)
		if !ok {
			return nil, nil
		}
		record, ok := related.Find(fk)
		if !ok {
			return nil, nil
		}
		return record, nil
	}
}

// makeReverseResolver resolves every record whose foreign key points at the
// source, e.g. User.Posts from posts.user_id.
func (r *Resolver) makeReverseResolver(rel introspection.Relationship) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		items := []datastore.Record{}
		source, ok := p.Source.(datastore.Record)
		if !ok {
			return items, nil
		}
		owner, ok := r.collection(rel.OwnerKey)
		if !ok {
			return items, nil
		}
		id := source["id"]
		for _, record := range owner.Records() {
			if jsonvalue.IDsEqual(record[rel.ForeignKey], id) {
				items = append(items, record)
			}
		}
		return items, nil
	}
}
