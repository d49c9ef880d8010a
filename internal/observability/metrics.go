package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "json-graphql-server"

// GraphQLMetrics records GraphQL traffic per operation type and per
// collection, and the records mutations write.
type GraphQLMetrics struct {
	duration           metric.Float64Histogram
	requests           metric.Int64Counter
	failures           metric.Int64Counter
	inFlight           metric.Int64UpDownCounter
	depth              metric.Int64Histogram
	collectionRequests metric.Int64Counter
	recordWrites       metric.Int64Counter
}

// GraphQLRequest is the outcome of one GraphQL request.
type GraphQLRequest struct {
	OperationType string
	// Collections addressed by the root fields. Each gets one count on
	// graphql.collection.requests.total.
	Collections []string
	// Depth is the selection depth; zero when the request did not parse.
	Depth     int
	Duration  time.Duration
	HasErrors bool
}

// instrumentSet creates instruments on one meter and keeps the first error.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) counter(name, description string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(description))
	s.fail(name, err)
	return c
}

func (s *instrumentSet) upDown(name, description string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(description))
	s.fail(name, err)
	return c
}

func (s *instrumentSet) histogram(name, description string) metric.Int64Histogram {
	h, err := s.meter.Int64Histogram(name, metric.WithDescription(description))
	s.fail(name, err)
	return h
}

func (s *instrumentSet) millis(name, description string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("ms"))
	s.fail(name, err)
	return h
}

func (s *instrumentSet) fail(name string, err error) {
	if err != nil {
		s.err = errors.Join(s.err, fmt.Errorf("create %s: %w", name, err))
	}
}

// InitMetrics creates the GraphQL instruments on the global meter provider.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	set := &instrumentSet{meter: otel.Meter(meterName)}
	m := &GraphQLMetrics{
		duration:           set.millis("graphql.request.duration", "Duration of GraphQL requests in milliseconds"),
		requests:           set.counter("graphql.requests.total", "Total number of GraphQL requests"),
		failures:           set.counter("graphql.errors.total", "Total number of GraphQL requests that returned errors"),
		inFlight:           set.upDown("graphql.requests.active", "Number of GraphQL requests being served"),
		depth:              set.histogram("graphql.query.depth", "Selection depth of GraphQL operations"),
		collectionRequests: set.counter("graphql.collection.requests.total", "GraphQL requests per addressed collection"),
		recordWrites:       set.counter("data.mutations.total", "Total number of records created, updated or removed"),
	}
	if set.err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", set.err)
	}

	if logger != nil {
		logger.Info("custom GraphQL metrics initialized")
	}
	return m, nil
}

// Begin marks a request in flight. The returned func marks it done.
func (m *GraphQLMetrics) Begin(ctx context.Context) func() {
	m.inFlight.Add(ctx, 1)
	return func() { m.inFlight.Add(ctx, -1) }
}

// RecordRequest records a finished request.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, req GraphQLRequest) {
	opType := attribute.String("operation_type", req.OperationType)
	outcome := metric.WithAttributes(opType, attribute.Bool("has_errors", req.HasErrors))

	m.duration.Record(ctx, float64(req.Duration.Milliseconds()), outcome)
	m.requests.Add(ctx, 1, outcome)
	if req.HasErrors {
		m.failures.Add(ctx, 1, metric.WithAttributes(opType))
	}
	if req.Depth > 0 {
		m.depth.Record(ctx, int64(req.Depth), metric.WithAttributes(opType))
	}
	for _, collection := range req.Collections {
		m.collectionRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collection", collection),
			opType,
			attribute.Bool("has_errors", req.HasErrors),
		))
	}
}

// RecordMutation records one record written by a mutation.
func (m *GraphQLMetrics) RecordMutation(ctx context.Context, collection, kind string) {
	m.recordWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("kind", kind),
	))
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
