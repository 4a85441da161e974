package tagcache

import (
	"context"
	"time"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
)

// LoadFunc produces a payload on a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Remember returns the payload cached under key. On a miss it calls fn,
// saves the result under tags and returns it. Errors from fn are returned
// and never cached. A failed save is logged and the fresh payload is still
// returned.
//
// Concurrent misses for the same key share one call to fn, made with the
// context of the first caller.
func (c *TagCache) Remember(ctx context.Context, key string, tags []string, ttl time.Duration, fn LoadFunc) ([]byte, error) {
	data, ok, err := c.Load(ctx, key, false)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Save(ctx, key, data, tags, ttl); err != nil {
			c.log.Warn(ctx, "remember: save failed",
				observe.Field{Key: "cache.key", Value: key},
				observe.Field{Key: "error", Value: err})
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// RememberInput is Remember with the key derived from namespace and input by
// keyer. When no key can be derived fn runs without caching.
func (c *TagCache) RememberInput(ctx context.Context, keyer cache.Keyer, namespace string, input any, tags []string, ttl time.Duration, fn LoadFunc) ([]byte, error) {
	key, err := keyer.Key(namespace, input)
	if err != nil {
		c.log.Debug(ctx, "remember: key derivation failed, not caching",
			observe.Field{Key: "namespace", Value: namespace},
			observe.Field{Key: "error", Value: err})
		return fn(ctx)
	}
	return c.Remember(ctx, key, tags, ttl, fn)
}
