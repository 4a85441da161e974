package resilience

import "time"

// Config is the declarative form of an Executor, as found in descriptor
// options and configuration files. Zero values disable a guard.
type Config struct {
	// MaxFailures enables the circuit breaker.
	MaxFailures  int           `mapstructure:"max_failures" yaml:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`

	// RetryAttempts > 1 enables retries.
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// MaxConcurrent enables the bulkhead.
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	MaxWait       time.Duration `mapstructure:"max_wait" yaml:"max_wait"`

	// Timeout enables the per-attempt timeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether any guard is configured.
func (c Config) Enabled() bool {
	return c.MaxFailures > 0 || c.RetryAttempts > 1 || c.MaxConcurrent > 0 || c.Timeout > 0
}

// NewExecutor builds an Executor from c. name labels the circuit breaker and
// onStateChange, if non-nil, observes its transitions.
func (c Config) NewExecutor(name string, onStateChange func(name string, from, to State)) *Executor {
	var opts []ExecutorOption
	if c.MaxConcurrent > 0 {
		opts = append(opts, WithBulkhead(NewBulkhead(BulkheadConfig{
			MaxConcurrent: c.MaxConcurrent,
			MaxWait:       c.MaxWait,
		})))
	}
	if c.MaxFailures > 0 {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			Name:          name,
			MaxFailures:   c.MaxFailures,
			ResetTimeout:  c.ResetTimeout,
			OnStateChange: onStateChange,
		})))
	}
	if c.RetryAttempts > 1 {
		opts = append(opts, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  c.RetryAttempts,
			InitialDelay: c.RetryDelay,
			Jitter:       true,
		})))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	return NewExecutor(opts...)
}
