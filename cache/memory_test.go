package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestMemoryBackend(t *testing.T, config MemoryConfig) (*MemoryBackend, *time.Time) {
	t.Helper()
	b, err := NewMemoryBackend(config)
	if err != nil {
		t.Fatalf("NewMemoryBackend() error = %v", err)
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestMemoryBackend_LoadSaveRemove(t *testing.T) {
	b, _ := newTestMemoryBackend(t, MemoryConfig{Policy: DefaultPolicy()})
	ctx := context.Background()

	// Load on empty backend
	val, ok, err := b.Load(ctx, "nonexistent", false)
	if err != nil || ok || val != nil {
		t.Errorf("Load on empty backend = (%q, %v, %v), want (nil, false, nil)", val, ok, err)
	}

	value := []byte("test-value")
	if err := b.Save(ctx, "test-key", value, []string{"ignored"}, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := b.Load(ctx, "test-key", false)
	if err != nil || !ok {
		t.Fatalf("Load after Save = (%v, %v), want ok", ok, err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Load returned %q, want %q", got, value)
	}

	if err := b.Remove(ctx, "test-key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := b.Load(ctx, "test-key", false); ok {
		t.Error("Load after Remove should return ok=false")
	}

	// Remove is idempotent
	if err := b.Remove(ctx, "nonexistent"); err != nil {
		t.Errorf("Remove on missing key should not error, got: %v", err)
	}
}

func TestMemoryBackend_InvalidKey(t *testing.T) {
	b, _ := newTestMemoryBackend(t, MemoryConfig{})

	err := b.Save(context.Background(), "bad\nkey", []byte("v"), nil, 0)
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Save with invalid key error = %v, want ErrInvalidKey", err)
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{Policy: DefaultPolicy()})
	ctx := context.Background()

	if err := b.Save(ctx, "k", []byte("v"), nil, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	*now = now.Add(2 * time.Minute)

	if _, ok, _ := b.Load(ctx, "k", false); ok {
		t.Error("Load after expiry should return ok=false")
	}
	if _, ok, _ := b.Test(ctx, "k"); ok {
		t.Error("Test after expiry should return ok=false")
	}

	// Expired but not yet cleaned entries are reachable when validity is skipped
	got, ok, _ := b.Load(ctx, "k", true)
	if !ok || string(got) != "v" {
		t.Errorf("Load(skipValidity) = (%q, %v), want (\"v\", true)", got, ok)
	}
}

func TestMemoryBackend_DefaultTTLAndNoExpiry(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{Policy: DefaultPolicy()})
	ctx := context.Background()

	_ = b.Save(ctx, "default", []byte("v"), nil, 0)
	_ = b.Save(ctx, "forever", []byte("v"), nil, NoExpiry)

	*now = now.Add(time.Hour)

	if _, ok, _ := b.Load(ctx, "default", false); ok {
		t.Error("entry saved with default TTL should have expired")
	}
	if _, ok, _ := b.Load(ctx, "forever", false); !ok {
		t.Error("entry saved with NoExpiry should still be present")
	}
}

func TestMemoryBackend_Test(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{Policy: DefaultPolicy()})
	ctx := context.Background()

	saved := *now
	_ = b.Save(ctx, "k", []byte("v"), nil, 0)

	mtime, ok, err := b.Test(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Test() = (%v, %v), want ok", ok, err)
	}
	if !mtime.Equal(saved) {
		t.Errorf("Test() mtime = %v, want %v", mtime, saved)
	}

	if _, ok, _ := b.Test(ctx, "missing"); ok {
		t.Error("Test() on missing key should return ok=false")
	}
}

func TestMemoryBackend_CleanModes(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{Policy: NoExpiryPolicy()})
	ctx := context.Background()

	_ = b.Save(ctx, "short", []byte("v"), nil, time.Second)
	_ = b.Save(ctx, "long", []byte("v"), nil, time.Hour)
	_ = b.Save(ctx, "forever", []byte("v"), nil, 0)

	*now = now.Add(time.Minute)

	if err := b.Clean(ctx, CleanOld, nil); err != nil {
		t.Fatalf("Clean(old) error = %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() after Clean(old) = %d, want 2", b.Len())
	}
	if _, ok, _ := b.Load(ctx, "short", true); ok {
		t.Error("expired entry should be gone after Clean(old)")
	}

	for _, mode := range []CleanMode{CleanMatchingTag, CleanNotMatchingTag} {
		if err := b.Clean(ctx, mode, []string{"a"}); !errors.Is(err, ErrUnsupportedCleanMode) {
			t.Errorf("Clean(%v) error = %v, want ErrUnsupportedCleanMode", mode, err)
		}
	}

	if err := b.Clean(ctx, CleanAll, nil); err != nil {
		t.Fatalf("Clean(all) error = %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after Clean(all) = %d, want 0", b.Len())
	}
}

func TestMemoryBackend_Touch(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{Policy: DefaultPolicy()})
	ctx := context.Background()

	_ = b.Save(ctx, "k", []byte("v"), nil, time.Minute)

	ok, err := b.Touch(ctx, "k", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Touch() = (%v, %v), want (true, nil)", ok, err)
	}

	*now = now.Add(30 * time.Minute)
	if _, ok, _ := b.Load(ctx, "k", false); !ok {
		t.Error("touched entry should outlive its original TTL")
	}

	if ok, _ := b.Touch(ctx, "missing", time.Hour); ok {
		t.Error("Touch() on missing key should return false")
	}
}

func TestMemoryBackend_KeysAndEviction(t *testing.T) {
	b, now := newTestMemoryBackend(t, MemoryConfig{MaxEntries: 2, Policy: DefaultPolicy()})
	ctx := context.Background()

	_ = b.Save(ctx, "a", []byte("1"), nil, time.Second)
	_ = b.Save(ctx, "b", []byte("2"), nil, time.Hour)
	_ = b.Save(ctx, "c", []byte("3"), nil, time.Hour)

	// "a" is evicted by capacity
	if _, ok, _ := b.Load(ctx, "a", true); ok {
		t.Error("oldest entry should have been evicted")
	}

	*now = now.Add(time.Minute)
	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "c" {
		t.Errorf("Keys() = %v, want [b c]", keys)
	}
}

func TestMemoryBackend_ConcurrentAccess(t *testing.T) {
	b, err := NewMemoryBackend(MemoryConfig{Policy: DefaultPolicy()})
	if err != nil {
		t.Fatalf("NewMemoryBackend() error = %v", err)
	}
	ctx := context.Background()

	const numGoroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 4 {
				case 0:
					_ = b.Save(ctx, "concurrent-key", []byte("v"), nil, time.Minute)
				case 1:
					_, _, _ = b.Load(ctx, "concurrent-key", false)
				case 2:
					_, _ = b.Touch(ctx, "concurrent-key", time.Second)
				case 3:
					_ = b.Remove(ctx, "concurrent-key")
				}
			}
		}()
	}

	wg.Wait()
}
