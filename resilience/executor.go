package resilience

import (
	"context"
	"time"
)

// Executor composes the guards around a single call.
//
// Order, outermost first: bulkhead, circuit breaker, retry, timeout. Each
// retry attempt gets its own timeout, and the breaker sees one outcome per
// Execute.
type Executor struct {
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor. With no options it calls op directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// Execute runs op through the configured guards.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op

	if e.timeout != nil {
		inner := call
		call = func(ctx context.Context) error { return e.timeout.Execute(ctx, inner) }
	}
	if e.retry != nil {
		inner := call
		call = func(ctx context.Context) error { return e.retry.Execute(ctx, inner) }
	}
	if e.circuitBreaker != nil {
		inner := call
		call = func(ctx context.Context) error { return e.circuitBreaker.Execute(ctx, inner) }
	}
	if e.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) error { return e.bulkhead.Execute(ctx, inner) }
	}

	return call(ctx)
}
