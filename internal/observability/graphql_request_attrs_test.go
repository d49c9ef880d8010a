package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	analysis := &gqlrequest.Analysis{
		Envelope: gqlrequest.Envelope{
			Query:             "query Q { allPosts { id } }",
			DocumentSizeBytes: 27,
		},
		RequestedOperationName: "Q",
		OperationName:          "Q",
		OperationType:          "query",
		OperationHash:          "hash123",
		RootFields:             []string{"allPosts"},
		FieldCount:             2,
		SelectionDepth:         2,
		VariableCount:          1,
		Operation:              &ast.OperationDefinition{},
	}
	meta := gqlrequest.ExecMeta{
		DataFingerprint: "fp-1",
		SnapshotKey:     "0123456789abcdef",
		Collections:     []string{"posts"},
	}

	attrs := attributeMap(GraphQLSpanAttributes(analysis, meta))
	assert.Equal(t, "Q", attrs["graphql.operation.name"].AsString())
	assert.Equal(t, "query", attrs["graphql.operation.type"].AsString())
	assert.Equal(t, "hash123", attrs["graphql.operation.hash"].AsString())
	assert.Equal(t, []string{"allPosts"}, attrs["graphql.operation.root_fields"].AsStringSlice())
	assert.Equal(t, int64(27), attrs["graphql.document.size_bytes"].AsInt64())
	assert.Equal(t, int64(2), attrs["graphql.query.depth"].AsInt64())
	assert.Equal(t, "fp-1", attrs["data.fingerprint"].AsString())
	assert.Equal(t, "0123456789abcdef", attrs["data.snapshot_key"].AsString())
	assert.Equal(t, []string{"posts"}, attrs["data.collections"].AsStringSlice())

	assert.Empty(t, GraphQLSpanAttributes(nil, gqlrequest.ExecMeta{}))
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{
		RequestedOperationName: "Q",
		OperationName:          "Q",
		OperationType:          "mutation",
		OperationHash:          "hash123",
		RootFields:             []string{"updatePost"},
	}, gqlrequest.ExecMeta{
		DataFingerprint: "fp-1",
		SnapshotKey:     "0123456789abcdef",
		Collections:     []string{"posts", "users"},
	})

	byKey := map[string]slog.Value{}
	for _, field := range fields {
		attr, ok := field.(slog.Attr)
		if ok {
			byKey[attr.Key] = attr.Value
		}
	}
	assert.Equal(t, "mutation", byKey["operation_type"].String())
	assert.Equal(t, "fp-1", byKey["data_fingerprint"].String())
	assert.Equal(t, "0123456789abcdef", byKey["snapshot_key"].String())
	assert.Equal(t, []string{"posts", "users"}, byKey["collections"].Any())
	assert.Equal(t, spanCtx.TraceID().String(), byKey["trace_id"].String())
	assert.NotContains(t, byKey, "graphql.operation.root_fields")
	assert.NotContains(t, byKey, "root_fields")
}

func attributeMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}
