package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/logging"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
	"github.com/eurisko-info-lab/json-graphql-server/internal/resolver"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const graphQLTracerName = "json-graphql-server/graphql"

// GraphQLTracingMiddleware instruments GraphQL execution with an inner span.
// Mutations get a MutationContext so the span can report the records written.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}
			meta, _ := gqlrequest.ExecMetaFromContext(r.Context())

			ctx, span := otel.Tracer(graphQLTracerName).Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}
			if span.IsRecording() {
				span.SetAttributes(observability.GraphQLSpanAttributes(analysis, meta)...)
			}

			var mc *resolver.MutationContext
			if analysis.IsMutation() {
				mc = resolver.MutationContextFromContext(ctx)
				if mc == nil {
					mc = resolver.NewMutationContext()
					ctx = resolver.WithMutationContext(ctx, mc)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			if mc != nil && span.IsRecording() {
				changes := mc.Changes()
				created, updated, removed := 0, 0, 0
				for _, change := range changes {
					switch change.Kind {
					case resolver.ChangeCreate:
						created++
					case resolver.ChangeUpdate:
						updated++
					case resolver.ChangeRemove:
						removed++
					}
				}
				span.SetAttributes(
					attribute.Int("graphql.mutation.records_created", created),
					attribute.Int("graphql.mutation.records_updated", updated),
					attribute.Int("graphql.mutation.records_removed", removed),
				)
			}
		})
	}
}
