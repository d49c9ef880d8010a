package observability

import (
	"context"
	"log/slog"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// requestField is one piece of GraphQL request metadata. Every field goes
// on the request span; fields with a log key also go on the request logger.
type requestField struct {
	span  attribute.Key
	log   string
	value attribute.Value
}

// requestFields lists the metadata known before execution: what the
// operation is, which collections it addresses and which data snapshot it
// runs against.
func requestFields(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []requestField {
	var out []requestField
	str := func(span attribute.Key, log, v string) {
		if v != "" {
			out = append(out, requestField{span: span, log: log, value: attribute.StringValue(v)})
		}
	}

	if analysis != nil {
		str("graphql.operation.requested_name", "operation_requested_name", analysis.RequestedOperationName)
		str("graphql.operation.name", "operation_name", analysis.OperationName)
		str("graphql.operation.type", "operation_type", analysis.OperationType)
		str("graphql.operation.hash", "operation_hash", analysis.OperationHash)
		if len(analysis.RootFields) > 0 {
			out = append(out, requestField{span: "graphql.operation.root_fields", value: attribute.StringSliceValue(analysis.RootFields)})
		}
		if analysis.Envelope.DocumentSizeBytes > 0 {
			out = append(out, requestField{span: "graphql.document.size_bytes", value: attribute.IntValue(analysis.Envelope.DocumentSizeBytes)})
		}
		if analysis.Parsed() {
			out = append(out,
				requestField{span: "graphql.query.field_count", value: attribute.IntValue(analysis.FieldCount)},
				requestField{span: "graphql.query.depth", value: attribute.IntValue(analysis.SelectionDepth)},
				requestField{span: "graphql.query.variable_count", value: attribute.IntValue(analysis.VariableCount)},
			)
		}
	}

	if len(meta.Collections) > 0 {
		out = append(out, requestField{span: "data.collections", log: "collections", value: attribute.StringSliceValue(meta.Collections)})
	}
	str("data.fingerprint", "data_fingerprint", meta.DataFingerprint)
	str("data.snapshot_key", "snapshot_key", meta.SnapshotKey)
	return out
}

// GraphQLSpanAttributes returns the request metadata as span attributes.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	fields := requestFields(analysis, meta)
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, attribute.KeyValue{Key: f.span, Value: f.value})
	}
	return attrs
}

// GraphQLLogFields returns the loggable request metadata as slog attributes,
// plus the trace id when ctx carries a span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	var fields []any
	for _, f := range requestFields(analysis, meta) {
		if f.log == "" {
			continue
		}
		switch f.value.Type() {
		case attribute.STRINGSLICE:
			fields = append(fields, slog.Any(f.log, f.value.AsStringSlice()))
		default:
			fields = append(fields, slog.String(f.log, f.value.Emit()))
		}
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
