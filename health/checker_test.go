package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/resilience"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	testErr := errors.New("test error")
	tests := []struct {
		name   string
		result Result
		want   Status
	}{
		{"healthy", Healthy("ok"), StatusHealthy},
		{"degraded", Degraded("slow"), StatusDegraded},
		{"unhealthy", Unhealthy("down", testErr), StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.want {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.want)
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp should not be zero")
			}
		})
	}
	if got := Unhealthy("down", testErr).Error; got != testErr {
		t.Errorf("Error = %v, want %v", got, testErr)
	}
}

func TestCheckerFunc(t *testing.T) {
	checker := NewCheckerFunc("test-checker", func(ctx context.Context) Result {
		return Healthy("from func").WithDetails(map[string]any{"key": "value"})
	})

	if checker.Name() != "test-checker" {
		t.Errorf("Name() = %v, want 'test-checker'", checker.Name())
	}
	result := checker.Check(context.Background())
	if result.Status != StatusHealthy || result.Details["key"] != "value" {
		t.Errorf("Check() = %+v", result)
	}
}

func TestPingChecker(t *testing.T) {
	errDown := errors.New("connection refused")
	tests := []struct {
		name  string
		ping  PingFunc
		slow  time.Duration
		want  Status
		isErr error
	}{
		{"reachable", func(context.Context) error { return nil }, time.Second, StatusHealthy, nil},
		{"unreachable", func(context.Context) error { return errDown }, time.Second, StatusUnhealthy, errDown},
		{"slow", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}, time.Millisecond, StatusDegraded, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewPingChecker("index", tt.ping).WithSlowThreshold(tt.slow).Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("Status = %v, want %v (%s)", result.Status, tt.want, result.Message)
			}
			if !errors.Is(result.Error, tt.isErr) {
				t.Fatalf("Error = %v, want %v", result.Error, tt.isErr)
			}
			if _, ok := result.Details["latency_ms"]; !ok {
				t.Fatal("latency_ms detail missing")
			}
		})
	}
}

func TestBreakerChecker(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "tagindex.sqlite",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Now:          func() time.Time { return now },
	})
	checker := NewBreakerChecker("index", cb)
	ctx := context.Background()

	if got := checker.Check(ctx).Status; got != StatusHealthy {
		t.Fatalf("closed breaker: Status = %v, want healthy", got)
	}

	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	result := checker.Check(ctx)
	if result.Status != StatusUnhealthy || !errors.Is(result.Error, ErrCircuitOpen) {
		t.Fatalf("open breaker: %+v", result)
	}
	if result.Details["state"] != "open" {
		t.Fatalf("state detail = %v, want open", result.Details["state"])
	}

	now = now.Add(2 * time.Minute)
	if got := checker.Check(ctx).Status; got != StatusDegraded {
		t.Fatalf("half-open breaker: Status = %v, want degraded", got)
	}
}

func TestCapacityChecker(t *testing.T) {
	mem, err := cache.NewMemoryBackend(cache.MemoryConfig{MaxEntries: 10})
	if err != nil {
		t.Fatal(err)
	}
	checker := NewCapacityChecker("memory", mem, CapacityCheckerConfig{WarningThreshold: 0.8})
	ctx := context.Background()

	for i := range 7 {
		_ = mem.Save(ctx, string(rune('a'+i)), []byte("v"), nil, 0)
	}
	if got := checker.Check(ctx).Status; got != StatusHealthy {
		t.Fatalf("70%% full: Status = %v, want healthy", got)
	}

	_ = mem.Save(ctx, "x", []byte("v"), nil, 0)
	result := checker.Check(ctx)
	if result.Status != StatusDegraded {
		t.Fatalf("80%% full: Status = %v, want degraded", result.Status)
	}
	if result.Details["capacity"] != 10 {
		t.Fatalf("capacity detail = %v, want 10", result.Details["capacity"])
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if got := checker.Check(cancelled).Status; got != StatusUnhealthy {
		t.Fatalf("cancelled: Status = %v, want unhealthy", got)
	}
}
