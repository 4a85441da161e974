package observe

import (
	"context"
	"time"
)

// OpFunc is a cache operation instrumented by Middleware.
type OpFunc func(ctx context.Context) error

// Middleware wraps cache operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is propagated to the wrapped operation.
//   - Errors: errors from the operation are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware from its parts.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Metrics returns the middleware's metrics.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Run executes fn inside a span. Successful operations are logged at debug,
// failures at error.
func (m *Middleware) Run(ctx context.Context, meta OpMeta, fn OpFunc) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordOp(ctx, meta, duration, err)

	fields := []Field{{Key: "duration_ms", Value: float64(duration) / float64(time.Millisecond)}}
	log := m.logger.WithOp(meta)
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		log.Error(ctx, "cache operation failed", fields...)
	} else {
		log.Debug(ctx, "cache operation completed", fields...)
	}
	return err
}

// Wrap returns fn instrumented for meta.
func (m *Middleware) Wrap(meta OpMeta, fn OpFunc) OpFunc {
	return func(ctx context.Context) error {
		return m.Run(ctx, meta, fn)
	}
}
