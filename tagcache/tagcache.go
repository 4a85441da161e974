package tagcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/tagindex"
)

// UntaggedTag is the row tag recorded for keys saved without tags when
// Config.TrackUntagged is set.
const UntaggedTag = ""

// TagCache is a cache.Backend that keeps a tag index next to an inner backend.
//
// Contract:
//   - Concurrency: safe for concurrent use; all shared state lives in the
//     backend and the index.
//   - Context: every call passes ctx to the backend and the index.
//   - Errors: backend failures wrap ErrBackendUnavailable, index failures wrap
//     ErrIndexUnavailable. Index failures during Save are warnings only.
type TagCache struct {
	backend      cache.Backend
	ownsBackend  bool
	indexSpec    *Descriptor
	indexes      *tagindex.Registry
	mw           *observe.Middleware
	log          observe.Logger
	untagged     bool
	duplicates   bool
	reconcileAll bool
	concurrency  int

	mu      sync.Mutex
	index   tagindex.Index
	opening singleflight.Group
	flight  singleflight.Group
	closed  atomic.Bool
}

var _ cache.Backend = (*TagCache)(nil)

// New validates cfg and builds a TagCache. The backend is constructed
// immediately; an index described by IndexSpec is opened on first use.
func New(cfg Config) (*TagCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backends := cfg.Backends
	if backends == nil {
		backends = cache.DefaultRegistry
	}
	indexes := cfg.Indexes
	if indexes == nil {
		indexes = tagindex.DefaultRegistry
	}
	obs := cfg.Observer
	if obs == nil {
		obs = observe.NewNoop()
	}
	concurrency := cfg.SweepConcurrency
	if concurrency == 0 {
		concurrency = DefaultSweepConcurrency
	}

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, &ConfigError{Field: "observer", Reason: "cannot create instruments", Err: err}
	}

	c := &TagCache{
		backend:      cfg.Backend,
		indexSpec:    cfg.IndexSpec,
		indexes:      indexes,
		index:        cfg.Index,
		mw:           mw,
		log:          obs.Logger(),
		untagged:     cfg.TrackUntagged,
		duplicates:   cfg.AllowDuplicateMappings,
		reconcileAll: cfg.ReconcileOnClean,
		concurrency:  concurrency,
	}

	if cfg.BackendSpec != nil {
		backend, err := backends.Create(cfg.BackendSpec.Type, cfg.BackendSpec.Options)
		if err != nil {
			return nil, &ConfigError{Field: "backend", Reason: "cannot construct " + cfg.BackendSpec.Type, Err: err}
		}
		c.backend = backend
		c.ownsBackend = true
	}
	return c, nil
}

// Backend returns the inner backend for capabilities TagCache does not forward.
func (c *TagCache) Backend() cache.Backend { return c.backend }

// Load returns the payload stored under key. The index is not consulted.
func (c *TagCache) Load(ctx context.Context, key string, skipValidity bool) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := c.runKey(ctx, observe.OpMeta{Op: "load", Key: key}, func(ctx context.Context) error {
		var err error
		data, ok, err = c.backend.Load(ctx, key, skipValidity)
		return backendError("load", key, err)
	})
	if err != nil {
		return nil, false, err
	}
	return data, ok, nil
}

// Test reports the last-modified time of key. The index is not consulted.
func (c *TagCache) Test(ctx context.Context, key string) (time.Time, bool, error) {
	var (
		modified time.Time
		ok       bool
	)
	err := c.runKey(ctx, observe.OpMeta{Op: "test", Key: key}, func(ctx context.Context) error {
		var err error
		modified, ok, err = c.backend.Test(ctx, key)
		return backendError("test", key, err)
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return modified, ok, nil
}

// Save stores data in the backend and then records one index row per tag.
// Tags are never passed to the backend. When the backend write fails no rows
// are written; when a row write fails the value stays cached and Save still
// returns nil.
func (c *TagCache) Save(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error {
	meta := observe.OpMeta{Op: "save", Key: key, Tags: tags}
	return c.runKey(ctx, meta, func(ctx context.Context) error {
		if err := c.backend.Save(ctx, key, data, nil, ttl); err != nil {
			return backendError("save", key, err)
		}
		if err := c.writeTags(ctx, key, c.effectiveTags(tags)); err != nil {
			c.mw.Metrics().RecordIndexWarning(ctx, meta)
			c.log.WithOp(meta).Warn(ctx, "tag index write failed, value cached without full tag coverage",
				observe.Field{Key: "error", Value: err})
		}
		return nil
	})
}

func (c *TagCache) effectiveTags(tags []string) []string {
	if tags = tagindex.NormalizeTags(tags); len(tags) > 0 {
		return tags
	}
	if c.untagged {
		return []string{UntaggedTag}
	}
	return nil
}

func (c *TagCache) writeTags(ctx context.Context, key string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	idx, err := c.getIndex(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, tag := range tags {
		if err := c.writeTag(ctx, idx, key, tag); err != nil {
			errs = append(errs, fmt.Errorf("tag %q: %w", tag, err))
		}
	}
	return indexError("insert", errors.Join(errs...))
}

func (c *TagCache) writeTag(ctx context.Context, idx tagindex.Index, key, tag string) error {
	if c.duplicates {
		return idx.Insert(ctx, key, tag)
	}
	if up, ok := idx.(tagindex.Upserter); ok {
		_, err := up.InsertIfAbsent(ctx, key, tag)
		return err
	}
	exists, err := idx.Exists(ctx, key, tag)
	if err != nil || exists {
		return err
	}
	return idx.Insert(ctx, key, tag)
}

// Remove deletes key's index rows and then its value. With duplicate mappings
// allowed the rows are left in place. An index failure does not stop the
// backend removal; both failures are returned joined.
func (c *TagCache) Remove(ctx context.Context, key string) error {
	return c.runKey(ctx, observe.OpMeta{Op: "remove", Key: key}, func(ctx context.Context) error {
		var idxErr error
		if !c.duplicates {
			idxErr = c.deleteRows(ctx, key)
		}
		return errors.Join(idxErr, backendError("remove", key, c.backend.Remove(ctx, key)))
	})
}

func (c *TagCache) deleteRows(ctx context.Context, key string) error {
	idx, err := c.getIndex(ctx)
	if err != nil {
		return err
	}
	return indexError(fmt.Sprintf("delete %q", key), idx.DeleteByKey(ctx, key))
}

// Clean removes entries according to mode. CleanAll and CleanOld are handled
// by the backend; the tag modes resolve keys through the index and remove
// each one with Remove. A tag sweep that fails for some keys keeps going and
// returns a *SweepError.
func (c *TagCache) Clean(ctx context.Context, mode cache.CleanMode, tags []string) error {
	switch mode {
	case cache.CleanAll, cache.CleanOld:
		return c.cleanBackend(ctx, mode)
	case cache.CleanMatchingTag, cache.CleanNotMatchingTag:
		_, err := c.sweep(ctx, mode, tags)
		return err
	default:
		return fmt.Errorf("tagcache: clean %s: %w", mode, cache.ErrUnsupportedCleanMode)
	}
}

func (c *TagCache) cleanBackend(ctx context.Context, mode cache.CleanMode) error {
	meta := observe.OpMeta{Op: "clean", Mode: mode.String()}
	return c.run(ctx, meta, func(ctx context.Context) error {
		if err := c.backend.Clean(ctx, mode, nil); err != nil {
			return backendError("clean "+mode.String(), "", err)
		}
		if !c.reconcileAll {
			return nil
		}
		removed, err := c.reconcile(ctx)
		if err != nil {
			c.mw.Metrics().RecordIndexWarning(ctx, meta)
			c.log.WithOp(meta).Warn(ctx, "reconcile after clean failed",
				observe.Field{Key: "removed", Value: removed},
				observe.Field{Key: "error", Value: err})
		}
		return nil
	})
}

// Touch extends key's lifetime when the backend implements cache.Toucher.
func (c *TagCache) Touch(ctx context.Context, key string, extra time.Duration) (bool, error) {
	toucher, ok := c.backend.(cache.Toucher)
	if !ok {
		return false, fmt.Errorf("%w: touch", ErrUnsupported)
	}
	var touched bool
	err := c.runKey(ctx, observe.OpMeta{Op: "touch", Key: key}, func(ctx context.Context) error {
		var err error
		touched, err = toucher.Touch(ctx, key, extra)
		return backendError("touch", key, err)
	})
	return touched, err
}

// Keys lists live keys when the backend implements cache.KeyLister.
func (c *TagCache) Keys(ctx context.Context) ([]string, error) {
	lister, ok := c.backend.(cache.KeyLister)
	if !ok {
		return nil, fmt.Errorf("%w: keys", ErrUnsupported)
	}
	var keys []string
	err := c.run(ctx, observe.OpMeta{Op: "keys"}, func(ctx context.Context) error {
		var err error
		keys, err = lister.Keys(ctx)
		return backendError("keys", "", err)
	})
	return keys, err
}

// Ping checks the backend and the index when they implement a Ping method.
// It opens a lazily configured index.
func (c *TagCache) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	var errs []error
	if p, ok := c.backend.(cache.Pinger); ok {
		errs = append(errs, backendError("ping", "", p.Ping(ctx)))
	}
	idx, err := c.getIndex(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if p, ok := idx.(tagindex.Pinger); ok {
		errs = append(errs, indexError("ping", p.Ping(ctx)))
	}
	return errors.Join(errs...)
}

// PingBackend checks only the inner backend.
func (c *TagCache) PingBackend(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if p, ok := c.backend.(cache.Pinger); ok {
		return backendError("ping", "", p.Ping(ctx))
	}
	return nil
}

// PingIndex checks only the tag index.
func (c *TagCache) PingIndex(ctx context.Context) error {
	idx, err := c.getIndex(ctx)
	if err != nil {
		return err
	}
	if p, ok := idx.(tagindex.Pinger); ok {
		return indexError("ping", p.Ping(ctx))
	}
	return nil
}

// Close releases the index and backend that New built from descriptors.
// Instances passed in Config stay open and remain owned by the caller.
// Close is idempotent.
func (c *TagCache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	idx := c.index
	c.index = nil
	c.mu.Unlock()

	var errs []error
	if idx != nil && c.indexSpec != nil {
		errs = append(errs, idx.Close())
	}
	if closer, ok := c.backend.(io.Closer); ok && c.ownsBackend {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// getIndex returns the index, opening it from IndexSpec on first use.
// Concurrent first calls share one open; a failed open is retried by the
// next call.
func (c *TagCache) getIndex(ctx context.Context) (tagindex.Index, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	idx := c.index
	c.mu.Unlock()
	if idx != nil {
		return idx, nil
	}

	v, err, _ := c.opening.Do("index", func() (any, error) {
		c.mu.Lock()
		if c.index != nil {
			idx := c.index
			c.mu.Unlock()
			return idx, nil
		}
		c.mu.Unlock()

		spec := c.indexSpec
		idx, err := c.indexes.Create(context.WithoutCancel(ctx), spec.Type, spec.Options)
		if err != nil {
			return nil, indexError("open "+spec.Type, err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed.Load() {
			_ = idx.Close()
			return nil, ErrClosed
		}
		c.index = idx
		c.log.Info(ctx, "tag index opened", observe.Field{Key: "index.type", Value: spec.Type})
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(tagindex.Index), nil
}

// run refuses work after Close and instruments fn.
func (c *TagCache) run(ctx context.Context, meta observe.OpMeta, fn observe.OpFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.mw.Run(ctx, meta, fn)
}

// runKey is run for single-key operations; meta.Key is validated first.
func (c *TagCache) runKey(ctx context.Context, meta observe.OpMeta, fn observe.OpFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := cache.ValidateKey(meta.Key); err != nil {
		return fmt.Errorf("tagcache: %s: %w", meta.Op, err)
	}
	return c.mw.Run(ctx, meta, fn)
}
