package tagcache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/tagcache/observe"
)

// Reconcile deletes the index rows of keys whose value is no longer in the
// backend, such as keys expired or purged by CleanAll and CleanOld. It
// returns the number of keys whose rows were deleted. The first backend or
// index failure stops the pass.
//
// A key saved again between its presence check and the delete has lost the
// rows of that Save, so Reconcile removes its value too. The key is then a
// miss rather than a value that tag invalidation cannot reach.
func (c *TagCache) Reconcile(ctx context.Context) (int, error) {
	var removed int
	err := c.run(ctx, observe.OpMeta{Op: "reconcile"}, func(ctx context.Context) error {
		var err error
		removed, err = c.reconcile(ctx)
		return err
	})
	return removed, err
}

func (c *TagCache) reconcile(ctx context.Context) (int, error) {
	idx, err := c.getIndex(ctx)
	if err != nil {
		return 0, err
	}
	keys, err := idx.FindKeysByTagNotIn(ctx, nil)
	if err != nil {
		return 0, indexError("list keys", err)
	}

	var removed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			_, ok, err := c.backend.Test(ctx, key)
			if err != nil {
				return backendError("test", key, err)
			}
			if ok {
				return nil
			}
			if err := idx.DeleteByKey(ctx, key); err != nil {
				return indexError("delete orphan", err)
			}
			removed.Add(1)

			_, ok, err = c.backend.Test(ctx, key)
			if err != nil {
				return backendError("test", key, err)
			}
			if !ok {
				return nil
			}
			c.log.Warn(ctx, "key saved during reconcile, value removed",
				observe.Field{Key: "key", Value: key})
			return backendError("remove", key, c.backend.Remove(ctx, key))
		})
	}
	err = g.Wait()

	n := int(removed.Load())
	if n > 0 {
		c.log.Info(ctx, "orphaned tag rows removed", observe.Field{Key: "keys", Value: n})
	}
	return n, err
}
