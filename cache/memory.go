package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds a MemoryBackend when no size is configured.
const DefaultMaxEntries = 10000

// MemoryConfig configures a MemoryBackend.
type MemoryConfig struct {
	// MaxEntries is the LRU capacity. Default: 10000
	MaxEntries int `mapstructure:"max_entries"`

	// Policy resolves Save TTLs.
	Policy Policy `mapstructure:",squash"`
}

// MemoryBackend is a bounded in-memory LRU backend.
type MemoryBackend struct {
	lru    *lru.Cache[string, *memoryEntry]
	size   int
	policy Policy
	now    func() time.Time

	// mu serializes read-modify-write operations (Touch, CleanOld)
	mu sync.Mutex
}

type memoryEntry struct {
	data      []byte
	modified  time.Time
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryBackend creates an in-memory backend.
func NewMemoryBackend(config MemoryConfig) (*MemoryBackend, error) {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}

	c, err := lru.New[string, *memoryEntry](config.MaxEntries)
	if err != nil {
		return nil, err
	}

	return &MemoryBackend{
		lru:    c,
		size:   config.MaxEntries,
		policy: config.Policy,
		now:    time.Now,
	}, nil
}

// Load retrieves a payload. Expired entries are misses unless skipValidity is set.
func (b *MemoryBackend) Load(_ context.Context, key string, skipValidity bool) ([]byte, bool, error) {
	entry, ok := b.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !skipValidity && entry.expired(b.now()) {
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Test returns the last-modified time of a live entry.
func (b *MemoryBackend) Test(_ context.Context, key string) (time.Time, bool, error) {
	entry, ok := b.lru.Peek(key)
	if !ok || entry.expired(b.now()) {
		return time.Time{}, false, nil
	}
	return entry.modified, true, nil
}

// Save stores data under key. Tags are ignored.
func (b *MemoryBackend) Save(_ context.Context, key string, data []byte, _ []string, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := b.now()
	b.lru.Add(key, &memoryEntry{
		data:      data,
		modified:  now,
		expiresAt: b.policy.ExpiresAt(now, ttl),
	})
	return nil
}

// Remove deletes key. Idempotent - no error on miss.
func (b *MemoryBackend) Remove(_ context.Context, key string) error {
	b.lru.Remove(key)
	return nil
}

// Clean supports CleanAll and CleanOld.
func (b *MemoryBackend) Clean(_ context.Context, mode CleanMode, _ []string) error {
	switch mode {
	case CleanAll:
		b.lru.Purge()
		return nil
	case CleanOld:
		b.mu.Lock()
		defer b.mu.Unlock()

		now := b.now()
		for _, key := range b.lru.Keys() {
			if entry, ok := b.lru.Peek(key); ok && entry.expired(now) {
				b.lru.Remove(key)
			}
		}
		return nil
	default:
		return ErrUnsupportedCleanMode
	}
}

// Touch extends the lifetime of a live entry by extra.
func (b *MemoryBackend) Touch(_ context.Context, key string, extra time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.lru.Peek(key)
	if !ok || entry.expired(b.now()) {
		return false, nil
	}

	touched := *entry
	if !touched.expiresAt.IsZero() {
		touched.expiresAt = touched.expiresAt.Add(extra)
	}
	b.lru.Add(key, &touched)
	return true, nil
}

// Keys returns the keys of live entries, oldest first.
func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	now := b.now()
	keys := b.lru.Keys()
	live := keys[:0]
	for _, key := range keys {
		if entry, ok := b.lru.Peek(key); ok && !entry.expired(now) {
			live = append(live, key)
		}
	}
	return live, nil
}

// Cap returns the LRU capacity.
func (b *MemoryBackend) Cap() int {
	return b.size
}

// Len returns the number of stored entries, including expired ones not yet cleaned.
func (b *MemoryBackend) Len() int {
	return b.lru.Len()
}

var (
	_ Backend   = (*MemoryBackend)(nil)
	_ Toucher   = (*MemoryBackend)(nil)
	_ KeyLister = (*MemoryBackend)(nil)
)
