// Package resilience guards calls to remote stores.
//
// TagCache uses it to protect tag index I/O: a slow or unreachable index
// should fail fast and recover on its own instead of stalling every Save.
//
// # Patterns
//
//   - CircuitBreaker stops calling a store after consecutive failures and
//     probes it again after a cool-down.
//   - Retry re-runs transient failures with exponential or constant backoff.
//   - Bulkhead caps the number of concurrent calls into a store.
//   - Timeout bounds each individual call.
//   - RateLimiter throttles expensive administrative requests.
//
// # Usage
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        MaxFailures:  5,
//	        ResetTimeout: 10 * time.Second,
//	    })),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(2*time.Second),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return index.Insert(ctx, key, tag)
//	})
//
// An Executor can also be built from declarative settings with
// Config.NewExecutor.
package resilience
