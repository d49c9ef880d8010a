package resolver

import (
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/query"
	"github.com/eurisko-info-lab/json-graphql-server/internal/scalars"

	"github.com/graphql-go/graphql"
)

func (r *Resolver) addCollectionQueries(fields graphql.Fields, coll *introspection.Collection) {
	objType := r.buildGraphQLType(coll)
	filterType := r.filterInput(coll)

	fields[coll.QueryName] = &graphql.Field{
		Type: objType,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.ID),
			},
		},
		Resolve: r.makeSingleResolver(coll),
	}

	fields[coll.ListQueryName] = &graphql.Field{
		Type: graphql.NewList(objType),
		Args: graphql.FieldConfigArgument{
			"page": &graphql.ArgumentConfig{
				Type: graphql.Int,
			},
			"perPage": &graphql.ArgumentConfig{
				Type:         graphql.Int,
				DefaultValue: query.DefaultPerPage,
			},
			"sortField": &graphql.ArgumentConfig{
				Type: graphql.String,
			},
			"sortOrder": &graphql.ArgumentConfig{
				Type:         graphql.String,
				DefaultValue: query.SortAsc,
			},
			"filter": &graphql.ArgumentConfig{
				Type: filterType,
			},
		},
		Resolve: r.makeListResolver(coll),
	}

	fields[coll.MetaQueryName] = &graphql.Field{
		Type: r.listMetadataType(),
		Args: graphql.FieldConfigArgument{
			"page": &graphql.ArgumentConfig{
				Type: graphql.Int,
			},
			"perPage": &graphql.ArgumentConfig{
				Type: graphql.Int,
			},
			"filter": &graphql.ArgumentConfig{
				Type: filterType,
			},
		},
		Resolve: r.makeMetaResolver(coll),
	}
}

func (r *Resolver) addCollectionMutations(fields graphql.Fields, coll *introspection.Collection) {
	objType := r.buildGraphQLType(coll)
	nonID := coll.NonIDFields()

	createArgs := graphql.FieldConfigArgument{}
	for _, f := range nonID {
		createArgs[f.Name] = &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(inputType(f.Type)),
		}
	}
	fields[coll.CreateName] = &graphql.Field{
		Type:    objType,
		Args:    createArgs,
		Resolve: r.makeCreateResolver(coll),
	}

	// Input objects must declare at least one field.
	if len(nonID) > 0 {
		fields[coll.CreateManyName] = &graphql.Field{
			Type: graphql.NewList(objType),
			Args: graphql.FieldConfigArgument{
				"data": &graphql.ArgumentConfig{
					Type: graphql.NewList(r.createManyInput(coll)),
				},
			},
			Resolve: r.makeCreateManyResolver(coll),
		}
	}

	updateArgs := graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(graphql.ID),
		},
	}
	for _, f := range nonID {
		updateArgs[f.Name] = &graphql.ArgumentConfig{
			Type: inputType(f.Type),
		}
	}
	fields[coll.UpdateName] = &graphql.Field{
		Type:    objType,
		Args:    updateArgs,
		Resolve: r.makeUpdateResolver(coll),
	}

	fields[coll.RemoveName] = &graphql.Field{
		Type: objType,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.ID),
			},
		},
		Resolve: r.makeRemoveResolver(coll),
	}
}

// buildGraphQLType returns the object type for a collection. Fields are
// built lazily through a thunk so relationship fields can reference types
// that are still being constructed.
func (r *Resolver) buildGraphQLType(coll *introspection.Collection) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.typeCache[coll.TypeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: coll.TypeName,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.buildFieldsForCollection(coll)
		}),
	})

	// Cache immediately before building fields (important for circular refs)
	r.mu.Lock()
	if cached, ok := r.typeCache[coll.TypeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.typeCache[coll.TypeName] = objType
	r.mu.Unlock()

	return objType
}

// buildFieldsForCollection builds the fields of a collection type (called
// lazily by FieldsThunk): every inferred record field, then the forward and
// reverse relationship fields.
func (r *Resolver) buildFieldsForCollection(coll *introspection.Collection) graphql.Fields {
	fields := graphql.Fields{}

	for _, f := range coll.Fields {
		fieldType := outputType(f.Type)
		if f.Required {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[f.Name] = &graphql.Field{
			Type: fieldType,
		}
	}

	for _, rel := range coll.Forward {
		related := r.model.Collection(rel.RelatedKey)
		if related == nil {
			continue
		}
		fields[rel.ForwardField] = &graphql.Field{
			Type:    r.buildGraphQLType(related),
			Resolve: guarded(r.makeForwardResolver(rel)),
		}
	}

	for _, rel := range coll.Reverse {
		owner := r.model.Collection(rel.OwnerKey)
		if owner == nil {
			continue
		}
		fields[rel.ReverseField] = &graphql.Field{
			Type:    graphql.NewList(r.buildGraphQLType(owner)),
			Resolve: guarded(r.makeReverseResolver(rel)),
		}
	}

	return fields
}

func (r *Resolver) filterInput(coll *introspection.Collection) *graphql.InputObject {
	r.mu.RLock()
	cached, ok := r.filterCache[coll.FilterTypeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range coll.Filters {
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type: inputType(f.Type),
		}
	}
	filter := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   coll.FilterTypeName,
		Fields: fields,
	})

	r.mu.Lock()
	r.filterCache[coll.FilterTypeName] = filter
	r.mu.Unlock()
	return filter
}

func (r *Resolver) createManyInput(coll *introspection.Collection) *graphql.InputObject {
	r.mu.RLock()
	cached, ok := r.inputCache[coll.InputTypeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range coll.NonIDFields() {
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewNonNull(inputType(f.Type)),
		}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   coll.InputTypeName,
		Fields: fields,
	})

	r.mu.Lock()
	r.inputCache[coll.InputTypeName] = input
	r.mu.Unlock()
	return input
}

func (r *Resolver) listMetadataType() *graphql.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listMetadata == nil {
		r.listMetadata = graphql.NewObject(graphql.ObjectConfig{
			Name: "ListMetadata",
			Fields: graphql.Fields{
				"count": &graphql.Field{Type: graphql.Int},
			},
		})
	}
	return r.listMetadata
}

func baseType(base introspection.BaseType) graphql.Type {
	switch base {
	case introspection.TypeID:
		return graphql.ID
	case introspection.TypeBoolean:
		return graphql.Boolean
	case introspection.TypeInt:
		return graphql.Int
	case introspection.TypeFloat:
		return graphql.Float
	case introspection.TypeDate:
		return scalars.Date()
	case introspection.TypeJSON:
		return scalars.JSON()
	default:
		return graphql.String
	}
}

func outputType(t introspection.FieldType) graphql.Output {
	base := baseType(t.Base)
	if t.List {
		return graphql.NewList(base)
	}
	return base
}

func inputType(t introspection.FieldType) graphql.Input {
	base := baseType(t.Base)
	if t.List {
		return graphql.NewList(base)
	}
	return base
}
