package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DataMetrics holds metrics for data loading and the live collections.
type DataMetrics struct {
	reloadCounter   metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
	counts          atomic.Pointer[func() map[string]int]
}

// InitDataMetrics initializes data reload metrics and the per-collection
// record count gauge.
func InitDataMetrics(logger *slog.Logger) (*DataMetrics, error) {
	meter := otel.Meter(meterName)

	reloadCounter, err := meter.Int64Counter(
		"data.reload.total",
		metric.WithDescription("Total number of data reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create data reload counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"data.reload.errors.total",
		metric.WithDescription("Total number of failed data reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create data reload error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"data.reload.duration",
		metric.WithDescription("Duration of data reload attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create data reload duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"data.reload.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful data reload"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create data reload last success gauge: %w", err)
	}

	recordsGauge, err := meter.Int64ObservableGauge(
		"data.collection.records",
		metric.WithDescription("Number of records in each collection"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection records gauge: %w", err)
	}

	metrics := &DataMetrics{
		reloadCounter: reloadCounter,
		errorCounter:  errorCounter,
		durationHist:  durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			counts := metrics.collectionCounts()
			keys := make([]string, 0, len(counts))
			for key := range counts {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				observer.ObserveInt64(recordsGauge, int64(counts[key]),
					metric.WithAttributes(attribute.String("collection", key)))
			}
			return nil
		},
		lastSuccessGauge,
		recordsGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register data gauge callback: %w", err)
	}

	logger.Info("data metrics initialized")
	return metrics, nil
}

// RecordReload records a data reload attempt.
func (m *DataMetrics) RecordReload(ctx context.Context, duration time.Duration, success bool, trigger string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.reloadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}

	m.lastSuccessUnix.Store(time.Now().Unix())
}

// ObserveCollections sets the source of the per-collection record counts.
// The function is called on every collection cycle, so it must be safe to
// call concurrently with requests.
func (m *DataMetrics) ObserveCollections(counts func() map[string]int) {
	if m == nil {
		return
	}
	m.counts.Store(&counts)
}

func (m *DataMetrics) collectionCounts() map[string]int {
	fn := m.counts.Load()
	if fn == nil || *fn == nil {
		return nil
	}
	return (*fn)()
}
