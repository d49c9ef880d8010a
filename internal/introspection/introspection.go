// Package introspection infers a typed model from the records of a data
// store: per-collection fields and types, filter shapes and the implicit
// foreign key relationships between collections.
package introspection

import (
	"context"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Collection is the inferred model of one data collection.
type Collection struct {
	Key            string // e.g. "posts"
	TypeName       string // e.g. "Post"
	FilterTypeName string // e.g. "PostFilter"
	InputTypeName  string // e.g. "PostInput"
	// Root field names.
	QueryName     string // e.g. "Post"
	ListQueryName string // e.g. "allPosts"
	MetaQueryName string // e.g. "_allPostsMeta"
	// Root mutation field names.
	CreateName     string // e.g. "createPost"
	CreateManyName string // e.g. "createManyPost"
	UpdateName     string // e.g. "updatePost"
	RemoveName     string // e.g. "removePost"
	// Fields are the record fields exposed on the type, "id" first.
	Fields  []Field
	Filters []FilterField
	// Forward holds the edges this collection owns through a foreign key.
	Forward []Relationship
	// Reverse holds the edges other collections own that point here.
	Reverse []Relationship
	// SyntheticID is set when no record carries an id and the id field was
	// added so lookups by id stay expressible.
	SyntheticID bool
}

// Field returns the field named name.
func (c *Collection) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// NonIDFields returns every field except id.
func (c *Collection) NonIDFields() []Field {
	out := make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name != "id" {
			out = append(out, f)
		}
	}
	return out
}

// Model is the inferred model of a whole data store.
type Model struct {
	// Collections are ordered by key.
	Collections   []*Collection
	Relationships []Relationship
	byKey         map[string]*Collection
	byRootField   map[string]string
}

// Collection returns the collection for key, or nil.
func (m *Model) Collection(key string) *Collection {
	if m == nil {
		return nil
	}
	return m.byKey[key]
}

// CollectionForRootField returns the key of the collection that owns the
// Query or Mutation root field name.
func (m *Model) CollectionForRootField(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	key, ok := m.byRootField[name]
	return key, ok
}

// RootFieldNames returns every root field the collection contributes.
func (c *Collection) RootFieldNames() []string {
	return []string{
		c.QueryName, c.ListQueryName, c.MetaQueryName,
		c.CreateName, c.CreateManyName, c.UpdateName, c.RemoveName,
	}
}

// FallbackFields returns every field whose type fell back to String, keyed
// by collection.
func (m *Model) FallbackFields() map[string][]string {
	out := make(map[string][]string)
	for _, c := range m.Collections {
		for _, f := range c.Fields {
			if f.Fallback {
				out[c.Key] = append(out[c.Key], f.Name)
			}
		}
	}
	return out
}

// Introspect infers the model of store. It reads the store without
// mutating it, and resets namer so the same namer can serve every rebuild.
// The result depends only on the store content.
func Introspect(ctx context.Context, store *datastore.Store, namer *naming.Namer) *Model {
	ctx, span := startSpan(ctx, "introspection.build_model")
	defer span.End()

	if namer == nil {
		namer = naming.Default()
	}
	namer.Reset()

	keys := store.Keys()
	model := &Model{
		Collections: make([]*Collection, 0, len(keys)),
		byKey:       make(map[string]*Collection, len(keys)),
		byRootField: make(map[string]string, 7*len(keys)),
	}

	typeNames := make(map[string]string, len(keys))
	for _, key := range keys {
		typeNames[key] = namer.RegisterType(key)
	}
	for _, key := range keys {
		c, _ := store.Collection(key)
		coll := buildCollection(key, typeNames[key], c.Records(), namer)
		model.Collections = append(model.Collections, coll)
		model.byKey[key] = coll
		for _, name := range coll.RootFieldNames() {
			model.byRootField[name] = key
		}
	}

	buildRelationships(ctx, model, namer)

	span.SetAttributes(attribute.Int("collections.count", len(model.Collections)))
	return model
}

func buildCollection(key, typeName string, records []datastore.Record, namer *naming.Namer) *Collection {
	coll := &Collection{
		Key:            key,
		TypeName:       typeName,
		FilterTypeName: namer.RegisterTypeName(namer.FilterTypeName(typeName), key),
		InputTypeName:  namer.RegisterTypeName(namer.InputTypeName(typeName), key),
		QueryName:      namer.RegisterQueryField(typeName, key),
		ListQueryName:  namer.RegisterQueryField(namer.ListQueryName(typeName), key),
		MetaQueryName:  namer.RegisterQueryField(namer.MetaQueryName(typeName), key),
		CreateName:     namer.RegisterMutationField(namer.CreateMutationName(typeName), key),
		CreateManyName: namer.RegisterMutationField(namer.CreateManyMutationName(typeName), key),
		UpdateName:     namer.RegisterMutationField(namer.UpdateMutationName(typeName), key),
		RemoveName:     namer.RegisterMutationField(namer.RemoveMutationName(typeName), key),
	}

	for _, f := range FieldsFromRecords(records) {
		if _, ok := namer.RegisterDataField(typeName, f.Name); !ok {
			continue
		}
		coll.Fields = append(coll.Fields, f)
	}

	if _, ok := coll.Field("id"); !ok {
		namer.RegisterDataField(typeName, "id")
		coll.Fields = append([]Field{{Name: "id", Type: FieldType{Base: TypeID}}}, coll.Fields...)
		coll.SyntheticID = true
	}

	coll.Filters = FiltersFromFields(coll.Fields)
	return coll
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("json-graphql-server/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}
