package resolver

import (
	"context"
	"testing"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"

	"github.com/graphql-go/graphql"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogData() map[string][]datastore.Record {
	return map[string][]datastore.Record{
		"posts": {
			{"id": int64(1), "title": "Lorem Ipsum", "views": int64(254), "user_id": int64(123)},
			{"id": int64(2), "title": "Sic Dolor amet", "views": int64(65), "user_id": int64(456)},
		},
		"users": {
			{"id": int64(123), "name": "John Doe"},
			{"id": int64(456), "name": "Jane Doe"},
		},
		"comments": {
			{"id": int64(987), "post_id": int64(1), "body": "Consectetur adipiscing elit", "date": "2017-07-03T00:00:00.000Z"},
			{"id": int64(995), "post_id": int64(1), "body": "Nam molestie pellentesque dui", "date": "2017-08-17T00:00:00.000Z"},
		},
	}
}

func newTestSchema(t *testing.T, data map[string][]datastore.Record) (graphql.Schema, *datastore.Store) {
	t.Helper()
	store := datastore.New(data)
	model := introspection.Introspect(context.Background(), store, naming.Default())
	schema, err := NewResolver(store, model, nil).BuildGraphQLSchema()
	require.NoError(t, err)
	return schema, store
}

func execute(t *testing.T, schema graphql.Schema, query string, variables map[string]interface{}) string {
	t.Helper()
	return executeContext(t, context.Background(), schema, query, variables)
}

func executeContext(t *testing.T, ctx context.Context, schema graphql.Schema, query string, variables map[string]interface{}) string {
	t.Helper()
	result := graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        gqlrequest.WithVariables(ctx, variables),
	})
	require.Empty(t, result.Errors, "query %q", query)
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(result.Data)
	require.NoError(t, err)
	return string(out)
}

func TestGetByID(t *testing.T) {
	schema, _ := newTestSchema(t, blogData())

	assert.JSONEq(t, `{"Post":{"id":"1","title":"Lorem Ipsum","views":254}}`,
		execute(t, schema, `{ Post(id: 1) { id title views } }`, nil))
	assert.JSONEq(t, `{"Post":{"id":"2"}}`,
		execute(t, schema, `{ Post(id: "2") { id } }`, nil))
	assert.JSONEq(t, `{"Post":null}`,
		execute(t, schema, `{ Post(id: 3) { id } }`, nil))
}

func TestListQuery(t *testing.T) {
	schema, _ := newTestSchema(t, blogData())

	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name:     "all records in order",
			query:    `{ allPosts { id } }`,
			expected: `{"allPosts":[{"id":"1"},{"id":"2"}]}`,
		},
		{
			name:     "sort ascending",
			query:    `{ allPosts(sortField: "views") { id } }`,
			expected: `{"allPosts":[{"id":"2"},{"id":"1"}]}`,
		},
		{
			name:     "sort descending",
			query:    `{ allPosts(sortField: "title", sortOrder: "desc") { id } }`,
			expected: `{"allPosts":[{"id":"2"},{"id":"1"}]}`,
		},
		{
			name:     "first page",
			query:    `{ allPosts(page: 0, perPage: 1) { id } }`,
			expected: `{"allPosts":[{"id":"1"}]}`,
		},
		{
			name:     "second page",
			query:    `{ allPosts(page: 1, perPage: 1) { id } }`,
			expected: `{"allPosts":[{"id":"2"}]}`,
		},
		{
			name:     "page past the end",
			query:    `{ allPosts(page: 5, perPage: 1) { id } }`,
			expected: `{"allPosts":[]}`,
		},
		{
			name:     "full text search",
			query:    `{ allPosts(filter: {q: "lorem"}) { id } }`,
			expected: `{"allPosts":[{"id":"1"}]}`,
		},
		{
			name:     "range filter",
			query:    `{ allPosts(filter: {views_gt: 100}) { id } }`,
			expected: `{"allPosts":[{"id":"1"}]}`,
		},
		{
			name:     "not equal filter",
			query:    `{ allPosts(filter: {views_neq: 254}) { id } }`,
			expected: `{"allPosts":[{"id":"2"}]}`,
		},
		{
			name:     "ids filter",
			query:    `{ allPosts(filter: {ids: ["2"]}) { id } }`,
			expected: `{"allPosts":[{"id":"2"}]}`,
		},
		{
			name:     "foreign key filter",
			query:    `{ allComments(filter: {post_id: 1}) { id } }`,
			expected: `{"allComments":[{"id":"987"},{"id":"995"}]}`,
		},
		{
			name:     "date filter",
			query:    `{ allComments(filter: {date_gte: "2017-08-01T00:00:00.000Z"}) { id date } }`,
			expected: `{"allComments":[{"id":"995","date":"2017-08-17T00:00:00.000Z"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, execute(t, schema, tt.query, nil))
		})
	}
}

func TestListMetadata(t *testing.T) {
	schema, _ := newTestSchema(t, blogData())

	assert.JSONEq(t, `{"_allPostsMeta":{"count":2}}`,
		execute(t, schema, `{ _allPostsMeta { count } }`, nil))
	assert.JSONEq(t, `{"_allPostsMeta":{"count":1}}`,
		execute(t, schema, `{ _allPostsMeta(filter: {views_gte: 100}) { count } }`, nil))
	assert.JSONEq(t, `{"_allPostsMeta":{"count":2}}`,
		execute(t, schema, `{ _allPostsMeta(page: 1, perPage: 1) { count } }`, nil))
}

func TestRelationships(t *testing.T) {
	schema, _ := newTestSchema(t, blogData())

	assert.JSONEq(t,
		`{"Post":{"User":{"name":"John Doe"},"Comments":[{"id":"987"},{"id":"995"}]}}`,
		execute(t, schema, `{ Post(id: 1) { User { name } Comments { id } } }`, nil))
	assert.JSONEq(t,
		`{"User":{"Posts":[{"id":"2","title":"Sic Dolor amet"}]}}`,
		execute(t, schema, `{ User(id: 456) { Posts { id title } } }`, nil))
	assert.JSONEq(t,
		`{"Post":{"Comments":[]}}`,
		execute(t, schema, `{ Post(id: 2) { Comments { id } } }`, nil))
	assert.JSONEq(t,
		`{"Comment":{"Post":{"User":{"Posts":[{"id":"1"}]}}}}`,
		execute(t, schema, `{ Comment(id: 987) { Post { User { Posts { id } } } } }`, nil))
}

func TestForwardRelationshipWithDanglingKey(t *testing.T) {
	schema, _ := newTestSchema(t, map[string][]datastore.Record{
		"posts": {{"id": int64(1), "user_id": int64(9)}},
		"users": {{"id": int64(1), "name": "John"}},
	})

	assert.JSONEq(t, `{"Post":{"User":null}}`,
		execute(t, schema, `{ Post(id: 1) { User { name } } }`, nil))
}

func TestCreateMutation(t *testing.T) {
	schema, store := newTestSchema(t, blogData())

	out := execute(t, schema, `mutation { createPost(title: "New post", views: 0, user_id: 123) { id title User { name } } }`, nil)
	assert.JSONEq(t, `{"createPost":{"id":"3","title":"New post","User":{"name":"John Doe"}}}`, out)

	posts, _ := store.Collection("posts")
	require.Equal(t, 3, posts.Len())
	last, _ := posts.Last()
	assert.Equal(t, int64(3), last["id"])
	assert.Equal(t, int64(0), last["views"])
	assert.Equal(t, "123", last["user_id"])

	out = execute(t, schema, `mutation { createComment(post_id: 1, body: "Hi", date: "2017-09-01T00:00:00.000Z") { id date } }`, nil)
	assert.JSONEq(t, `{"createComment":{"id":"996","date":"2017-09-01T00:00:00.000Z"}}`, out)
	comments, _ := store.Collection("comments")
	stored, _ := comments.Last()
	assert.Equal(t, "2017-09-01T00:00:00.000Z", stored["date"])
}

func TestCreateAllocatesIDsInEmptyCollection(t *testing.T) {
	schema, store := newTestSchema(t, map[string][]datastore.Record{
		"drafts": {},
	})

	assert.JSONEq(t, `{"createDraft":{"id":"0"}}`, execute(t, schema, `mutation { createDraft { id } }`, nil))
	assert.JSONEq(t, `{"createDraft":{"id":"1"}}`, execute(t, schema, `mutation { createDraft { id } }`, nil))
	assert.JSONEq(t, `{"removeDraft":{"id":"1"}}`, execute(t, schema, `mutation { removeDraft(id: 1) { id } }`, nil))
	assert.JSONEq(t, `{"createDraft":{"id":"1"}}`, execute(t, schema, `mutation { createDraft { id } }`, nil))

	drafts, _ := store.Collection("drafts")
	assert.Equal(t, 2, drafts.Len())
}

func TestCreateManyMutation(t *testing.T) {
	schema, store := newTestSchema(t, blogData())

	out := execute(t, schema, `mutation {
		createManyUser(data: [{name: "Ann"}, {name: "Bob"}]) { id name }
	}`, nil)
	assert.JSONEq(t, `{"createManyUser":[{"id":"457","name":"Ann"},{"id":"458","name":"Bob"}]}`, out)

	users, _ := store.Collection("users")
	assert.Equal(t, 4, users.Len())

	assert.JSONEq(t, `{"createManyUser":[]}`, execute(t, schema, `mutation { createManyUser { id } }`, nil))
}

func TestUpdateMutation(t *testing.T) {
	schema, store := newTestSchema(t, blogData())

	out := execute(t, schema, `mutation { updatePost(id: 1, title: "Changed") { id title views } }`, nil)
	assert.JSONEq(t, `{"updatePost":{"id":"1","title":"Changed","views":254}}`, out)

	posts, _ := store.Collection("posts")
	record, ok := posts.Find(int64(1))
	require.True(t, ok)
	assert.Equal(t, "Changed", record["title"])
	assert.Equal(t, int64(1), record["id"])

	assert.JSONEq(t, `{"updatePost":null}`,
		execute(t, schema, `mutation { updatePost(id: 42, title: "x") { id } }`, nil))
}

func TestUpdateWithNullRemovesField(t *testing.T) {
	schema, store := newTestSchema(t, map[string][]datastore.Record{
		"items": {{"id": int64(1), "value": "foo"}, {"id": int64(2)}},
	})

	out := execute(t, schema, `mutation ($value: String) { updateItem(id: 1, value: $value) { id value } }`,
		map[string]interface{}{"value": nil})
	assert.JSONEq(t, `{"updateItem":{"id":"1","value":null}}`, out)

	items, _ := store.Collection("items")
	record, _ := items.Find(1)
	_, has := record["value"]
	assert.False(t, has)
}

func TestUpdateWithOmittedVariableKeepsField(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
		expected  string
		wantValue bool
	}{
		{name: "no variables", variables: nil, expected: `{"updateItem":{"id":"1","other":"y","value":"foo"}}`, wantValue: true},
		{name: "empty variables", variables: map[string]interface{}{}, expected: `{"updateItem":{"id":"1","other":"y","value":"foo"}}`, wantValue: true},
		{name: "sent as null", variables: map[string]interface{}{"value": nil}, expected: `{"updateItem":{"id":"1","other":"y","value":null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, store := newTestSchema(t, map[string][]datastore.Record{
				"items": {{"id": int64(1), "value": "foo", "other": "x"}, {"id": int64(2), "other": "z"}},
			})

			out := execute(t, schema, `mutation ($value: String) { updateItem(id: 1, other: "y", value: $value) { id other value } }`, tt.variables)
			assert.JSONEq(t, tt.expected, out)

			items, _ := store.Collection("items")
			record, _ := items.Find(1)
			assert.Equal(t, "y", record["other"])
			_, has := record["value"]
			assert.Equal(t, tt.wantValue, has)
		})
	}
}

func TestUpdateWithoutIDNeverMatches(t *testing.T) {
	store := datastore.New(map[string][]datastore.Record{
		"items": {{"id": "undefined", "value": "foo"}},
	})
	model := introspection.Introspect(context.Background(), store, naming.Default())
	r := NewResolver(store, model, nil)

	resolve := r.makeUpdateResolver(model.Collection("items"))
	result, err := resolve(graphql.ResolveParams{
		Args:    map[string]interface{}{"value": "bar"},
		Context: context.Background(),
	})
	require.NoError(t, err)
	assert.Nil(t, result)

	items, _ := store.Collection("items")
	record, _ := items.At(0)
	assert.Equal(t, "foo", record["value"])
}

func TestRemoveMutation(t *testing.T) {
	schema, store := newTestSchema(t, blogData())

	assert.JSONEq(t, `{"removePost":{"id":"1","title":"Lorem Ipsum"}}`,
		execute(t, schema, `mutation { removePost(id: 1) { id title } }`, nil))
	assert.JSONEq(t, `{"removePost":null}`,
		execute(t, schema, `mutation { removePost(id: 1) { id } }`, nil))

	posts, _ := store.Collection("posts")
	assert.Equal(t, 1, posts.Len())
}

func TestMutationContextRecordsChanges(t *testing.T) {
	schema, _ := newTestSchema(t, blogData())

	mc := NewMutationContext()
	ctx := WithMutationContext(context.Background(), mc)
	executeContext(t, ctx, schema, `mutation {
		a: createUser(name: "Ann") { id }
		b: updateUser(id: 123, name: "Johnny") { id }
		c: removeUser(id: 456) { id }
		d: removeUser(id: 999) { id }
	}`, nil)

	assert.Equal(t, []Change{
		{Collection: "users", Kind: ChangeCreate, ID: int64(457)},
		{Collection: "users", Kind: ChangeUpdate, ID: int64(123)},
		{Collection: "users", Kind: ChangeRemove, ID: int64(456)},
	}, mc.Changes())
	assert.Nil(t, MutationContextFromContext(context.Background()))
}

func TestSchemaShape(t *testing.T) {
	schema, _ := newTestSchema(t, map[string][]datastore.Record{
		"posts":  {{"id": int64(1), "title": "Lorem", "views": int64(3)}, {"id": int64(2), "title": "Ipsum"}},
		"drafts": {},
	})

	mutation := schema.MutationType()
	require.NotNil(t, mutation)
	fields := mutation.Fields()

	createArgs := argTypes(fields["createPost"].Args)
	assert.Equal(t, "String!", createArgs["title"])
	assert.Equal(t, "Int!", createArgs["views"])
	assert.NotContains(t, createArgs, "id")

	updateArgs := argTypes(fields["updatePost"].Args)
	assert.Equal(t, "ID!", updateArgs["id"])
	assert.Equal(t, "String", updateArgs["title"])
	assert.Equal(t, "Int", updateArgs["views"])

	assert.Contains(t, fields, "createManyPost")
	assert.Contains(t, fields, "createDraft")
	assert.NotContains(t, fields, "createManyDraft")

	post, ok := schema.Type("Post").(*graphql.Object)
	require.True(t, ok)
	assert.Equal(t, "String!", post.Fields()["title"].Type.String())
	assert.Equal(t, "Int", post.Fields()["views"].Type.String())

	filter, ok := schema.Type("PostFilter").(*graphql.InputObject)
	require.True(t, ok)
	for _, name := range []string{"q", "ids", "title", "views", "views_lt", "views_lte", "views_gt", "views_gte", "views_neq"} {
		assert.Contains(t, filter.Fields(), name)
	}

	queryFields := schema.QueryType().Fields()
	list := argTypes(queryFields["allPosts"].Args)
	assert.Equal(t, "PostFilter", list["filter"])
	assert.Contains(t, queryFields, "_allDraftsMeta")
}

func TestEmptyDataSchema(t *testing.T) {
	schema, _ := newTestSchema(t, map[string][]datastore.Record{})

	assert.Nil(t, schema.MutationType())
	assert.JSONEq(t, `{"_schema":"No collections found in data"}`, execute(t, schema, `{ _schema }`, nil))
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name     string
		records  []datastore.Record
		expected any
	}{
		{"empty collection", nil, int64(0)},
		{"integer ids", []datastore.Record{{"id": int64(1)}, {"id": int64(7)}}, int64(8)},
		{"float ids", []datastore.Record{{"id": 1.5}}, 2.5},
		{"numeric string ids", []datastore.Record{{"id": "12"}}, "13"},
		{"decimal string ids", []datastore.Record{{"id": "1.5"}}, "2.5"},
		{"other string ids", []datastore.Record{{"id": "abc"}}, "abc1"},
		{"missing last id", []datastore.Record{{"id": int64(1)}, {"name": "x"}}, int64(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := datastore.New(map[string][]datastore.Record{"items": tt.records})
			c, _ := store.Collection("items")
			assert.Equal(t, tt.expected, NextID(c))
		})
	}
}

func argTypes(args []*graphql.Argument) map[string]string {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		out[arg.Name()] = arg.Type.String()
	}
	return out
}
