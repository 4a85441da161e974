package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when no concurrency slot became available.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrRateLimitExceeded is returned when the rate limiter rejects a call.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrTimeout is returned when a call exceeds its time budget.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// IsRejection reports whether err was produced by a guard rather than by the
// guarded call itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrBulkheadFull) ||
		errors.Is(err, ErrRateLimitExceeded)
}
