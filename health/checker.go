package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tagcache/resilience"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component works but slowly or near its limits.
	StatusDegraded
	// StatusUnhealthy indicates the component cannot serve requests.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Check must return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the name of this checker.
func (f *CheckerFunc) Name() string { return f.name }

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is implemented by backends, indexes and TagCache itself.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to a Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// DefaultSlowThreshold is the ping latency above which a PingChecker reports
// StatusDegraded.
const DefaultSlowThreshold = 250 * time.Millisecond

// PingChecker reports Unhealthy when Ping fails and Degraded when it is slow.
type PingChecker struct {
	name   string
	pinger Pinger
	slow   time.Duration
}

// NewPingChecker creates a PingChecker with DefaultSlowThreshold.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p, slow: DefaultSlowThreshold}
}

// WithSlowThreshold sets the latency above which the check is degraded.
func (c *PingChecker) WithSlowThreshold(d time.Duration) *PingChecker {
	if d > 0 {
		c.slow = d
	}
	return c
}

// Name returns the name of this checker.
func (c *PingChecker) Name() string { return c.name }

// Check pings the component.
func (c *PingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.pinger.Ping(ctx)
	latency := time.Since(start)
	details := map[string]any{"latency_ms": float64(latency) / float64(time.Millisecond)}

	switch {
	case err != nil:
		return Unhealthy(c.name+" unreachable", err).WithDetails(details)
	case latency > c.slow:
		return Degraded(fmt.Sprintf("%s slow: %s", c.name, latency.Round(time.Millisecond))).WithDetails(details)
	default:
		return Healthy(c.name + " reachable").WithDetails(details)
	}
}

// BreakerChecker reports the state of a circuit breaker: closed is healthy,
// half-open degraded and open unhealthy.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a BreakerChecker.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: cb}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string { return c.name }

// Check inspects the breaker without calling through it.
func (c *BreakerChecker) Check(context.Context) Result {
	m := c.breaker.Metrics()
	details := map[string]any{
		"state":        m.State.String(),
		"failures":     m.Failures,
		"times_opened": m.TimesOpened,
	}
	switch m.State {
	case resilience.StateOpen:
		details["opened_at"] = m.OpenedAt.UTC().Format(time.RFC3339)
		return Unhealthy(c.name+" circuit open", ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded(c.name + " circuit probing").WithDetails(details)
	default:
		return Healthy(c.name + " circuit closed").WithDetails(details)
	}
}
