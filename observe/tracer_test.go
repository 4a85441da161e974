package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOpMeta_SpanName(t *testing.T) {
	if got := (OpMeta{Op: "clean"}).SpanName(); got != "tagcache.clean" {
		t.Errorf("SpanName() = %q, want tagcache.clean", got)
	}
}

func TestOpMeta_Validate(t *testing.T) {
	if err := (OpMeta{}).Validate(); !errors.Is(err, ErrMissingOp) {
		t.Errorf("Validate() = %v, want ErrMissingOp", err)
	}
	if err := (OpMeta{Op: "save"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(tp.Tracer("test")), recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Op: "save", Key: "page:1", Tags: []string{"pages"}})
	tracer.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "tagcache.save" {
		t.Errorf("Name() = %q", s.Name())
	}
	attrs := spanAttrs(s)
	if attrs["cache.key"].AsString() != "page:1" {
		t.Errorf("cache.key = %v", attrs["cache.key"])
	}
	if got := attrs["cache.tags"].AsStringSlice(); len(got) != 1 || got[0] != "pages" {
		t.Errorf("cache.tags = %v", got)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_EndSpanWithError(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Op: "remove", Key: "k"})
	tracer.EndSpan(span, errors.New("backend down"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "backend down" {
		t.Errorf("status = %+v, want error", s.Status())
	}
	if !spanAttrs(s)["cache.error"].AsBool() {
		t.Error("cache.error = false, want true")
	}
	if len(s.Events()) == 0 {
		t.Error("error event not recorded")
	}
}
