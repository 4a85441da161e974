package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Timeout bounds each call with a deadline.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a Timeout. Non-positive durations use DefaultTimeout.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &Timeout{d: d}
}

// Duration returns the configured bound.
func (t *Timeout) Duration() time.Duration { return t.d }

// Execute runs op with a derived deadline. If op does not return in time the
// call returns ErrTimeout without waiting for op to observe cancellation.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrTimeout, t.d)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, t.d)
		}
		return ctx.Err()
	}
}
