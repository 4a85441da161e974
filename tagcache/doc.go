// Package tagcache adds tags and tag-based invalidation to any cache.Backend.
//
// A TagCache wraps an inner backend that knows nothing about tags and keeps a
// durable tagindex.Index of (cache_key, tag) rows next to it. Values are
// stored in the backend only; tags are stored in the index only. Sweeping a
// tag resolves its keys through the index and removes each key through
// TagCache.Remove, so the value and all of the key's other tag rows go
// together.
//
// # Consistency
//
// Index writes during Save are best effort: when the index is unreachable the
// value is still cached and the failure is logged as a warning. A failed
// backend write never creates index rows. Full and age-based cleans leave the
// index alone unless Config.ReconcileOnClean is set; Reconcile removes rows
// whose values are gone and can be run periodically.
//
// # Usage
//
//	tc, err := tagcache.New(tagcache.Config{
//	    BackendSpec:   &tagcache.Descriptor{Type: "memory"},
//	    IndexSpec:     &tagcache.Descriptor{Type: "sqlite", Options: map[string]any{"path": "tags.db"}},
//	    TrackUntagged: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tc.Close()
//
//	_ = tc.Save(ctx, "page:42", body, []string{"pages", "site:7"}, time.Hour)
//	removed, err := tc.Invalidate(ctx, "site:7")
package tagcache
