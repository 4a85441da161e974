package health

import (
	"context"
	"fmt"
)

// Sizer is implemented by bounded stores such as cache.MemoryBackend.
type Sizer interface {
	Len() int
	Cap() int
}

// CapacityCheckerConfig configures a CapacityChecker.
type CapacityCheckerConfig struct {
	// WarningThreshold is the fill ratio that triggers degraded status.
	// Value should be between 0 and 1. Default: 0.9
	WarningThreshold float64
}

// CapacityChecker reports Degraded when a bounded store is nearly full and
// further saves will evict live entries. Only a cancelled check is Unhealthy.
type CapacityChecker struct {
	name   string
	store  Sizer
	config CapacityCheckerConfig
}

// NewCapacityChecker creates a CapacityChecker.
func NewCapacityChecker(name string, store Sizer, config CapacityCheckerConfig) *CapacityChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold > 1 {
		config.WarningThreshold = 0.9
	}
	return &CapacityChecker{name: name, store: store, config: config}
}

// Name returns the name of this checker.
func (c *CapacityChecker) Name() string { return c.name }

// Check compares the store's size with its capacity.
func (c *CapacityChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	size, capacity := c.store.Len(), c.store.Cap()
	if capacity <= 0 {
		return Healthy(c.name + " unbounded").WithDetails(map[string]any{"entries": size})
	}

	ratio := float64(size) / float64(capacity)
	details := map[string]any{
		"entries":       size,
		"capacity":      capacity,
		"usage_percent": ratio * 100,
	}
	if ratio >= c.config.WarningThreshold {
		return Degraded(fmt.Sprintf("%s near capacity: %.1f%%", c.name, ratio*100)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%s usage normal: %.1f%%", c.name, ratio*100)).WithDetails(details)
}
