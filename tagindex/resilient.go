package tagindex

import (
	"context"

	"github.com/jonwraymond/tagcache/resilience"
)

// Resilient runs every call of an inner Index through a resilience.Executor.
type Resilient struct {
	inner Index
	exec  *resilience.Executor
}

// NewResilient wraps inner. A nil executor passes calls straight through.
func NewResilient(inner Index, exec *resilience.Executor) *Resilient {
	if exec == nil {
		exec = resilience.NewExecutor()
	}
	return &Resilient{inner: inner, exec: exec}
}

// Unwrap returns the wrapped index.
func (r *Resilient) Unwrap() Index { return r.inner }

// Executor returns the guarding executor.
func (r *Resilient) Executor() *resilience.Executor { return r.exec }

// Exists reports whether the row exists, through the guards.
func (r *Resilient) Exists(ctx context.Context, key, tag string) (bool, error) {
	var ok bool
	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		ok, err = r.inner.Exists(ctx, key, tag)
		return err
	})
	return ok, err
}

// Insert adds a row, through the guards.
func (r *Resilient) Insert(ctx context.Context, key, tag string) error {
	return r.exec.Execute(ctx, func(ctx context.Context) error {
		return r.inner.Insert(ctx, key, tag)
	})
}

// InsertIfAbsent uses the inner Upserter when there is one, and otherwise
// falls back to Exists followed by Insert inside the same guarded call.
func (r *Resilient) InsertIfAbsent(ctx context.Context, key, tag string) (bool, error) {
	var inserted bool
	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		if up, ok := r.inner.(Upserter); ok {
			var err error
			inserted, err = up.InsertIfAbsent(ctx, key, tag)
			return err
		}
		exists, err := r.inner.Exists(ctx, key, tag)
		if err != nil || exists {
			return err
		}
		if err := r.inner.Insert(ctx, key, tag); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// DeleteByKey removes every row of key, through the guards.
func (r *Resilient) DeleteByKey(ctx context.Context, key string) error {
	return r.exec.Execute(ctx, func(ctx context.Context) error {
		return r.inner.DeleteByKey(ctx, key)
	})
}

// FindKeysByTagIn returns keys with any of tags, through the guards.
func (r *Resilient) FindKeysByTagIn(ctx context.Context, tags []string) ([]string, error) {
	var keys []string
	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		keys, err = r.inner.FindKeysByTagIn(ctx, tags)
		return err
	})
	return keys, err
}

// FindKeysByTagNotIn returns keys with none of tags, through the guards.
func (r *Resilient) FindKeysByTagNotIn(ctx context.Context, tags []string) ([]string, error) {
	var keys []string
	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		keys, err = r.inner.FindKeysByTagNotIn(ctx, tags)
		return err
	})
	return keys, err
}

// Ping bypasses the guards so health checks see the store's real state.
func (r *Resilient) Ping(ctx context.Context) error {
	if p, ok := r.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the inner index. It is not guarded.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

var (
	_ Index    = (*Resilient)(nil)
	_ Upserter = (*Resilient)(nil)
	_ Pinger   = (*Resilient)(nil)
)
