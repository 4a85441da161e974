package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func TestMetrics_RecordOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOp(ctx, OpMeta{Op: "save"}, 5*time.Millisecond, nil)
	m.RecordOp(ctx, OpMeta{Op: "save"}, 5*time.Millisecond, errors.New("boom"))
	m.RecordOp(ctx, OpMeta{Op: "load"}, time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumValue(t, rm, MetricOpTotal); got != 3 {
		t.Errorf("%s = %d, want 3", MetricOpTotal, got)
	}
	if got := sumValue(t, rm, MetricOpErrors); got != 1 {
		t.Errorf("%s = %d, want 1", MetricOpErrors, got)
	}

	hist := findMetric(rm, MetricOpDuration)
	if hist == nil {
		t.Fatalf("%s not found", MetricOpDuration)
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("histogram count = %d, want 3", count)
	}
}

func TestMetrics_IndexWarningsAndSweeps(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIndexWarning(ctx, OpMeta{Op: "save"})
	m.RecordIndexWarning(ctx, OpMeta{Op: "save"})
	m.RecordSweep(ctx, "matching_tag", 3)
	m.RecordSweep(ctx, "not_matching_tag", 4)

	rm := collect(t, reader)
	if got := sumValue(t, rm, MetricIndexWarnings); got != 2 {
		t.Errorf("%s = %d, want 2", MetricIndexWarnings, got)
	}
	if got := sumValue(t, rm, MetricSweepKeys); got != 7 {
		t.Errorf("%s = %d, want 7", MetricSweepKeys, got)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordOp(ctx, OpMeta{Op: "load"}, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := sumValue(t, collect(t, reader), MetricOpTotal); got != 50 {
		t.Errorf("%s = %d, want 50", MetricOpTotal, got)
	}
}
