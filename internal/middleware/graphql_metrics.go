package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/gqlrequest"
	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"

	jsoniter "github.com/json-iterator/go"
)

// GraphQLMetricsMiddleware records one request sample per GraphQL POST,
// labelled by operation type and by every collection the root fields address.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are not operations.
			if r.Method != http.MethodPost || metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)
			defer metrics.Begin(ctx)()

			start := time.Now()
			sample := requestSample(r)

			wrapped := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			sample.Duration = time.Since(start)
			sample.HasErrors = wrapped.statusCode >= 400 || responseHasGraphQLErrors(wrapped.body.Bytes())
			metrics.RecordRequest(ctx, sample)
		})
	}
}

// requestSample labels the request from the analysis stored upstream,
// analyzing it here when no upstream middleware did.
func requestSample(r *http.Request) observability.GraphQLRequest {
	sample := observability.GraphQLRequest{OperationType: "unknown"}

	analysis := gqlrequest.AnalysisFromContext(r.Context())
	if analysis == nil {
		analysis = gqlrequest.AnalyzeRequest(r)
	}
	if analysis.Parsed() && analysis.OperationType != "" {
		sample.OperationType = analysis.OperationType
		sample.Depth = analysis.SelectionDepth
	}
	if meta, ok := gqlrequest.ExecMetaFromContext(r.Context()); ok {
		sample.Collections = meta.Collections
	}
	return sample
}

// metricsResponseWriter captures the status code and body of a response.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       bytes.Buffer
}

func (w *metricsResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if len(b) > 0 {
		_, _ = w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// responseHasGraphQLErrors reports whether body is a GraphQL response with a
// non-empty errors array.
func responseHasGraphQLErrors(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}

	var payload struct {
		Errors []jsoniter.RawMessage `json:"errors"`
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(trimmed, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
