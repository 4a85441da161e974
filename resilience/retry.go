package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy controls how the delay grows between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffConstant waits InitialDelay between every attempt.
	BackoffConstant
)

// RetryConfig configures a Retry.
type RetryConfig struct {
	// MaxAttempts includes the first call. Default: 3
	MaxAttempts int

	// InitialDelay is the wait before the first retry. Default: 50ms
	InitialDelay time.Duration

	// MaxDelay caps any single wait. Default: 2s
	MaxDelay time.Duration

	// Multiplier grows exponential backoff. Default: 2.0
	Multiplier float64

	// Strategy selects the backoff. Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter adds up to 25% random delay.
	Jitter bool

	// RetryIf decides whether an error is worth another attempt.
	// Default: Retryable.
	RetryIf func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs failed operations with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry with defaults applied.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 50 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 2 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = Retryable
	}
	return &Retry{config: config}
}

// Retryable is the default retry predicate. Guard rejections and context
// errors are final; everything else is retried.
func Retryable(err error) bool {
	if err == nil || isContextErr(err) || errors.Is(err, ErrTimeout) {
		return false
	}
	return !IsRejection(err)
}

// Execute runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up. The last error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil || !r.config.RetryIf(err) || attempt >= r.config.MaxAttempts {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

func (r *Retry) delay(attempt int) time.Duration {
	delay := r.config.InitialDelay
	if r.config.Strategy == BackoffExponential {
		delay = time.Duration(float64(delay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
