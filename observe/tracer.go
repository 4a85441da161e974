package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpMeta describes one cache operation for telemetry purposes.
type OpMeta struct {
	Op   string   // load, test, save, remove, clean, reconcile, ... (required)
	Key  string   // cache key, for single-key operations
	Mode string   // clean mode, for clean and sweep
	Tags []string // tags involved, for save and tag sweeps
}

// SpanName returns the deterministic span name: tagcache.<op>.
func (m OpMeta) SpanName() string {
	return "tagcache." + m.Op
}

// Validate reports ErrMissingOp when Op is empty.
func (m OpMeta) Validate() error {
	if m.Op == "" {
		return ErrMissingOp
	}
	return nil
}

// Tracer starts and ends operation spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("cache.op", meta.Op),
		attribute.Bool("cache.error", false),
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", meta.Key))
	}
	if meta.Mode != "" {
		attrs = append(attrs, attribute.String("cache.mode", meta.Mode))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("cache.tags", meta.Tags))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("cache.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
