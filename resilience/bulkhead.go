package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of calls allowed in flight. Default: 16
	MaxConcurrent int

	// MaxWait is how long a call may queue for a slot. Zero fails immediately.
	MaxWait time.Duration
}

// Bulkhead caps concurrent calls into a store.
type Bulkhead struct {
	config   BulkheadConfig
	sem      *semaphore.Weighted
	active   atomic.Int64
	rejected atomic.Int64
}

// NewBulkhead creates a Bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 16
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Execute runs op once a slot is available.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	b.active.Add(1)
	defer func() {
		b.active.Add(-1)
		b.sem.Release(1)
	}()
	return op(ctx)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		return nil
	}
	if b.config.MaxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.rejected.Add(1)
		return ErrBulkheadFull
	}
	return nil
}

// Metrics returns a snapshot of the bulkhead.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		Available:     b.config.MaxConcurrent - active,
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}

// BulkheadMetrics is a point-in-time view of a Bulkhead.
type BulkheadMetrics struct {
	Active        int
	Available     int
	MaxConcurrent int
	Rejected      int64
}
