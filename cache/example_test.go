package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tagcache/cache"
)

func ExampleNewMemoryBackend() {
	b, _ := cache.NewMemoryBackend(cache.MemoryConfig{Policy: cache.DefaultPolicy()})
	ctx := context.Background()

	// Store a value
	_ = b.Save(ctx, "my-key", []byte("hello"), nil, 5*time.Minute)

	// Retrieve the value
	value, ok, _ := b.Load(ctx, "my-key", false)
	if ok {
		fmt.Println("Value:", string(value))
	}
	// Output:
	// Value: hello
}

func ExampleMemoryBackend_Remove() {
	b, _ := cache.NewMemoryBackend(cache.MemoryConfig{})
	ctx := context.Background()

	_ = b.Save(ctx, "to-delete", []byte("temporary"), nil, time.Hour)

	err := b.Remove(ctx, "to-delete")
	fmt.Println("Remove error:", err)

	_, ok, _ := b.Load(ctx, "to-delete", false)
	fmt.Println("After remove:", ok)

	// Remove is idempotent - no error on missing key
	err = b.Remove(ctx, "never-existed")
	fmt.Println("Remove missing:", err)
	// Output:
	// Remove error: <nil>
	// After remove: false
	// Remove missing: <nil>
}

func ExampleNewDefaultKeyer() {
	keyer := cache.NewDefaultKeyer()

	// Request context is passed explicitly
	key1, _ := keyer.Key("breadcrumbs", map[string]any{"route": "/blog", "lang": "en"})
	fmt.Println("Key format:", key1[:15])

	// Deterministic - same input produces same key
	key2, _ := keyer.Key("breadcrumbs", map[string]any{"lang": "en", "route": "/blog"})
	fmt.Println("Keys match:", key1 == key2)
	// Output:
	// Key format: tc:breadcrumbs:
	// Keys match: true
}

func ExamplePolicy_EffectiveTTL() {
	policy := cache.Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     1 * time.Hour,
	}

	fmt.Println("No override:", policy.EffectiveTTL(0))
	fmt.Println("10min override:", policy.EffectiveTTL(10*time.Minute))
	fmt.Println("2hr override (clamped):", policy.EffectiveTTL(2*time.Hour))
	fmt.Println("No expiry (clamped):", policy.EffectiveTTL(cache.NoExpiry))
	// Output:
	// No override: 5m0s
	// 10min override: 10m0s
	// 2hr override (clamped): 1h0m0s
	// No expiry (clamped): 1h0m0s
}

func ExampleRegistry_Create() {
	b, err := cache.DefaultRegistry.Create("memory", map[string]any{
		"max_entries": 100,
		"default_ttl": "10m",
	})
	fmt.Println("Error:", err)
	fmt.Printf("Type: %T\n", b)
	// Output:
	// Error: <nil>
	// Type: *cache.MemoryBackend
}
