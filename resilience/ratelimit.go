package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// Rate is the sustained number of calls per second. Default: 10
	Rate float64

	// Burst is the bucket size. Default: 5
	Burst int

	// MaxWait is how long a call may wait for a token. Zero fails immediately.
	MaxWait time.Duration
}

// RateLimiter is a token bucket guarding expensive operations.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Execute runs op once a token is available within MaxWait.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.MaxWait <= 0 {
		if !rl.limiter.Allow() {
			return ErrRateLimitExceeded
		}
		return op(ctx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, rl.config.MaxWait)
	defer cancel()
	if err := rl.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimitExceeded
	}
	return op(ctx)
}
