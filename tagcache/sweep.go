package tagcache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/tagindex"
)

// Invalidate removes every key carrying at least one of tags and returns how
// many keys were removed.
func (c *TagCache) Invalidate(ctx context.Context, tags ...string) (int, error) {
	return c.sweep(ctx, cache.CleanMatchingTag, tags)
}

// Sweep runs a CleanMatchingTag or CleanNotMatchingTag clean and returns how
// many keys were removed. Other modes return cache.ErrUnsupportedCleanMode.
func (c *TagCache) Sweep(ctx context.Context, mode cache.CleanMode, tags []string) (int, error) {
	if mode != cache.CleanMatchingTag && mode != cache.CleanNotMatchingTag {
		return 0, fmt.Errorf("tagcache: sweep %s: %w", mode, cache.ErrUnsupportedCleanMode)
	}
	return c.sweep(ctx, mode, tags)
}

func (c *TagCache) sweep(ctx context.Context, mode cache.CleanMode, tags []string) (int, error) {
	tags = tagindex.NormalizeTags(tags)
	meta := observe.OpMeta{Op: "clean", Mode: mode.String(), Tags: tags}

	var removed int
	err := c.run(ctx, meta, func(ctx context.Context) error {
		keys, err := c.resolve(ctx, mode, tags)
		if err != nil {
			return err
		}
		removed, err = c.removeKeys(ctx, mode, keys)
		c.mw.Metrics().RecordSweep(ctx, mode.String(), removed)
		return err
	})
	return removed, err
}

func (c *TagCache) resolve(ctx context.Context, mode cache.CleanMode, tags []string) ([]string, error) {
	idx, err := c.getIndex(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	if mode == cache.CleanMatchingTag {
		keys, err = idx.FindKeysByTagIn(ctx, tags)
	} else {
		keys, err = idx.FindKeysByTagNotIn(ctx, tags)
	}
	if err != nil {
		return nil, indexError("resolve "+mode.String()+" ["+strings.Join(tags, ",")+"]", err)
	}
	return keys, nil
}

// removeKeys removes keys through Remove with bounded parallelism. Every key
// is attempted; failures are collected rather than stopping the sweep.
func (c *TagCache) removeKeys(ctx context.Context, mode cache.CleanMode, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var (
		mu       sync.Mutex
		failures []KeyError
	)
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = c.Remove(ctx, key)
			}
			if err != nil {
				mu.Lock()
				failures = append(failures, KeyError{Key: key, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return len(keys), nil
	}
	slices.SortFunc(failures, func(a, b KeyError) int { return strings.Compare(a.Key, b.Key) })
	return len(keys) - len(failures), &SweepError{Mode: mode, Resolved: len(keys), Failures: failures}
}
