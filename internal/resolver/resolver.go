// Package resolver builds an executable GraphQL schema from an inferred data
// model. It generates one object type and one filter input per collection,
// the Query and Mutation roots, and relationship fields for implicit foreign
// keys. Every resolver reads and writes the same live data store.
package resolver

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"

	"github.com/graphql-go/graphql"
)

// Resolver assembles the schema for one store snapshot and holds the caches
// used while building it.
type Resolver struct {
	store        *datastore.Store
	model        *introspection.Model
	logger       *slog.Logger
	typeCache    map[string]*graphql.Object
	filterCache  map[string]*graphql.InputObject
	inputCache   map[string]*graphql.InputObject
	listMetadata *graphql.Object
	mu           sync.RWMutex
}

// NewResolver creates a resolver over store using the model inferred from it.
func NewResolver(store *datastore.Store, model *introspection.Model, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:       store,
		model:       model,
		logger:      logger,
		typeCache:   make(map[string]*graphql.Object),
		filterCache: make(map[string]*graphql.InputObject),
		inputCache:  make(map[string]*graphql.InputObject),
	}
}

// BuildGraphQLSchema constructs the executable schema: an object type per
// collection, the get-by-id, list and count queries, and the create,
// createMany, update and remove mutations. Relationship fields are attached
// lazily when the object types resolve their fields.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	r.logFallbacks()

	queryFields := graphql.Fields{}
	for _, coll := range r.model.Collections {
		r.addCollectionQueries(queryFields, coll)
	}

	// If no collections exist, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No collections found in data", nil
			},
			Description: "Placeholder field when the data has no collections",
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	}

	mutationFields := graphql.Fields{}
	for _, coll := range r.model.Collections {
		r.addCollectionMutations(mutationFields, coll)
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	return graphql.NewSchema(schemaConfig)
}

func (r *Resolver) collection(key string) (*datastore.Collection, bool) {
	return r.store.Collection(key)
}

func (r *Resolver) logFallbacks() {
	fallbacks := r.model.FallbackFields()
	keys := make([]string, 0, len(fallbacks))
	for key := range fallbacks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		r.logger.Warn("field types could not be inferred, defaulting to String",
			slog.String("collection", key),
			slog.String("fields", strings.Join(fallbacks[key], ",")),
		)
	}
}
