package tagcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/tagindex"
)

var errDown = errors.New("store unreachable")

// faultyBackend is a MemoryBackend whose operations can be made to fail.
type faultyBackend struct {
	*cache.MemoryBackend

	mu         sync.Mutex
	failSave   bool
	failTest   bool
	failRemove map[string]bool
	savedTags  [][]string

	// onTest, if set, runs once in place of the next Test, which then
	// reports the key absent.
	onTest func(key string)
}

func newFaultyBackend(t *testing.T) *faultyBackend {
	t.Helper()
	mem, err := cache.NewMemoryBackend(cache.MemoryConfig{})
	if err != nil {
		t.Fatalf("NewMemoryBackend() error = %v", err)
	}
	return &faultyBackend{MemoryBackend: mem, failRemove: map[string]bool{}}
}

func (b *faultyBackend) Save(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error {
	b.mu.Lock()
	b.savedTags = append(b.savedTags, tags)
	fail := b.failSave
	b.mu.Unlock()
	if fail {
		return errDown
	}
	return b.MemoryBackend.Save(ctx, key, data, tags, ttl)
}

func (b *faultyBackend) Test(ctx context.Context, key string) (time.Time, bool, error) {
	b.mu.Lock()
	fail := b.failTest
	hook := b.onTest
	b.onTest = nil
	b.mu.Unlock()
	if fail {
		return time.Time{}, false, errDown
	}
	if hook != nil {
		hook(key)
		return time.Time{}, false, nil
	}
	return b.MemoryBackend.Test(ctx, key)
}

func (b *faultyBackend) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	fail := b.failRemove[key]
	b.mu.Unlock()
	if fail {
		return errDown
	}
	return b.MemoryBackend.Remove(ctx, key)
}

// faultyIndex is a MemoryIndex whose operations can be made to fail.
type faultyIndex struct {
	*tagindex.MemoryIndex

	mu         sync.Mutex
	failInsert bool
	failFind   bool
	failDelete bool
}

func newFaultyIndex() *faultyIndex {
	return &faultyIndex{MemoryIndex: tagindex.NewMemoryIndex()}
}

func (f *faultyIndex) set(field *bool, v bool) {
	f.mu.Lock()
	*field = v
	f.mu.Unlock()
}

func (f *faultyIndex) check(field *bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *field {
		return errDown
	}
	return nil
}

func (f *faultyIndex) Insert(ctx context.Context, key, tag string) error {
	if err := f.check(&f.failInsert); err != nil {
		return err
	}
	return f.MemoryIndex.Insert(ctx, key, tag)
}

func (f *faultyIndex) InsertIfAbsent(ctx context.Context, key, tag string) (bool, error) {
	if err := f.check(&f.failInsert); err != nil {
		return false, err
	}
	return f.MemoryIndex.InsertIfAbsent(ctx, key, tag)
}

func (f *faultyIndex) DeleteByKey(ctx context.Context, key string) error {
	if err := f.check(&f.failDelete); err != nil {
		return err
	}
	return f.MemoryIndex.DeleteByKey(ctx, key)
}

func (f *faultyIndex) FindKeysByTagIn(ctx context.Context, tags []string) ([]string, error) {
	if err := f.check(&f.failFind); err != nil {
		return nil, err
	}
	return f.MemoryIndex.FindKeysByTagIn(ctx, tags)
}

func (f *faultyIndex) FindKeysByTagNotIn(ctx context.Context, tags []string) ([]string, error) {
	if err := f.check(&f.failFind); err != nil {
		return nil, err
	}
	return f.MemoryIndex.FindKeysByTagNotIn(ctx, tags)
}

// plainIndex hides the optional interfaces of the wrapped index.
type plainIndex struct{ tagindex.Index }

// plainBackend hides the optional interfaces of the wrapped backend.
type plainBackend struct{ cache.Backend }

type fixture struct {
	tc      *TagCache
	backend *faultyBackend
	index   *faultyIndex
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	t.Helper()
	f := &fixture{backend: newFaultyBackend(t), index: newFaultyIndex()}
	cfg := Config{Backend: f.backend, Index: f.index}
	if configure != nil {
		configure(&cfg)
	}
	tc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = tc.Close() })
	f.tc = tc
	return f
}

func (f *fixture) save(t *testing.T, key string, tags ...string) {
	t.Helper()
	if err := f.tc.Save(context.Background(), key, []byte("v:"+key), tags, 0); err != nil {
		t.Fatalf("Save(%q) error = %v", key, err)
	}
}

func (f *fixture) present(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := f.tc.Load(context.Background(), key, false)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", key, err)
	}
	return ok
}

func (f *fixture) rows(t *testing.T, key string) []string {
	t.Helper()
	var tags []string
	for _, tag := range []string{UntaggedTag, "a", "b", "c", "d"} {
		if f.index.RowCount(key, tag) > 0 {
			tags = append(tags, tag)
		}
	}
	return tags
}
