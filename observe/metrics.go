package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricOpTotal       = "tagcache.op.total"
	MetricOpErrors      = "tagcache.op.errors"
	MetricOpDuration    = "tagcache.op.duration_ms"
	MetricIndexWarnings = "tagcache.index.warnings"
	MetricSweepKeys     = "tagcache.sweep.keys"
)

// Metrics records cache operation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOp records one operation with its duration and outcome.
	RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordIndexWarning counts an index failure that did not fail the operation.
	RecordIndexWarning(ctx context.Context, meta OpMeta)

	// RecordSweep counts keys removed by a tag sweep.
	RecordSweep(ctx context.Context, mode string, removed int)
}

type metricsImpl struct {
	total    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	warnings metric.Int64Counter
	swept    metric.Int64Counter
}

// NewMetrics creates the cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	total, err := meter.Int64Counter(MetricOpTotal,
		metric.WithDescription("Total number of cache operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(MetricOpErrors,
		metric.WithDescription("Total number of failed cache operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(MetricOpDuration,
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	warnings, err := meter.Int64Counter(MetricIndexWarnings,
		metric.WithDescription("Tag index failures tolerated during an operation"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		return nil, err
	}

	swept, err := meter.Int64Counter(MetricSweepKeys,
		metric.WithDescription("Keys removed by tag sweeps"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		total:    total,
		errors:   errs,
		duration: duration,
		warnings: warnings,
		swept:    swept,
	}, nil
}

func (m *metricsImpl) RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("cache.op", meta.Op)}
	if meta.Mode != "" {
		attrs = append(attrs, attribute.String("cache.mode", meta.Mode))
	}
	opt := metric.WithAttributes(attrs...)

	m.total.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordIndexWarning(ctx context.Context, meta OpMeta) {
	m.warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.op", meta.Op)))
}

func (m *metricsImpl) RecordSweep(ctx context.Context, mode string, removed int) {
	m.swept.Add(ctx, int64(removed), metric.WithAttributes(attribute.String("cache.mode", mode)))
}
