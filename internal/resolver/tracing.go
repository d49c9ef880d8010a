package resolver

import (
	"context"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/introspection"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolver span outcomes.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeNoMatch = "no_match"
)

// collectionSpan traces one root resolver working on one collection.
type collectionSpan struct {
	span    trace.Span
	outcome string
}

// startCollectionSpan opens the span for a root resolver. It names the
// collection, its GraphQL type and the root field, and carries the
// request's snapshot key when the route computed one.
func startCollectionSpan(p graphql.ResolveParams, name string, coll *introspection.Collection) *collectionSpan {
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []attribute.KeyValue{
		attribute.String("graphql.collection", coll.Key),
		attribute.String("graphql.collection.type", coll.TypeName),
	}
	if p.Info.FieldName != "" {
		attrs = append(attrs, attribute.String("graphql.field.name", p.Info.FieldName))
	}
	if meta, ok := gqlrequest.ExecMetaFromContext(ctx); ok && meta.SnapshotKey != "" {
		attrs = append(attrs, attribute.String("data.snapshot_key", meta.SnapshotKey))
	}

	_, span := otel.Tracer("json-graphql-server/resolver").Start(ctx, name, trace.WithAttributes(attrs...))
	return &collectionSpan{span: span}
}

// count records how many records the resolver returned.
func (s *collectionSpan) count(n int) {
	s.span.SetAttributes(attribute.Int("graphql.result.count", n))
}

// matched records whether an id lookup found its record. A miss is not an
// error; the field resolves to null.
func (s *collectionSpan) matched(ok bool) {
	s.span.SetAttributes(attribute.Bool("graphql.record.matched", ok))
	if !ok {
		s.outcome = outcomeNoMatch
	}
}

// end sets the outcome and ends the span.
func (s *collectionSpan) end(err error) {
	outcome := s.outcome
	switch {
	case err != nil:
		outcome = outcomeError
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	case outcome == "":
		outcome = outcomeSuccess
	}
	s.span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	s.span.End()
}
