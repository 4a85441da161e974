package tagindex

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is a process-local index. Row multiplicity is tracked so that
// Insert can represent duplicate rows like a table without a unique constraint.
type MemoryIndex struct {
	mu     sync.RWMutex
	rows   map[string]map[string]int      // key → tag → row count
	byTag  map[string]map[string]struct{} // tag → keys
	closed bool
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		rows:  make(map[string]map[string]int),
		byTag: make(map[string]map[string]struct{}),
	}
}

// Exists reports whether a (key, tag) row exists.
func (m *MemoryIndex) Exists(_ context.Context, key, tag string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrClosed
	}
	return m.rows[key][tag] > 0, nil
}

// Insert adds a row, allowing duplicates.
func (m *MemoryIndex) Insert(_ context.Context, key, tag string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.addLocked(key, tag)
	return nil
}

// InsertIfAbsent adds a row only when no (key, tag) row exists.
func (m *MemoryIndex) InsertIfAbsent(_ context.Context, key, tag string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	if m.rows[key][tag] > 0 {
		return false, nil
	}
	m.addLocked(key, tag)
	return true, nil
}

// DeleteByKey removes every row for key.
func (m *MemoryIndex) DeleteByKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for tag := range m.rows[key] {
		if keys, ok := m.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.byTag, tag)
			}
		}
	}
	delete(m.rows, key)
	return nil
}

// FindKeysByTagIn returns keys carrying any of tags.
func (m *MemoryIndex) FindKeysByTagIn(_ context.Context, tags []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	found := make(map[string]struct{})
	for _, tag := range tags {
		for key := range m.byTag[tag] {
			found[key] = struct{}{}
		}
	}
	return sortedKeys(found), nil
}

// FindKeysByTagNotIn returns keys carrying none of tags.
func (m *MemoryIndex) FindKeysByTagNotIn(_ context.Context, tags []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	excluded := make(map[string]struct{})
	for _, tag := range tags {
		for key := range m.byTag[tag] {
			excluded[key] = struct{}{}
		}
	}

	found := make(map[string]struct{}, len(m.rows))
	for key := range m.rows {
		if _, skip := excluded[key]; !skip {
			found[key] = struct{}{}
		}
	}
	return sortedKeys(found), nil
}

// RowCount returns the number of rows stored for (key, tag).
func (m *MemoryIndex) RowCount(key, tag string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[key][tag]
}

// Ping reports ErrClosed after Close.
func (m *MemoryIndex) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the index closed. Subsequent calls fail with ErrClosed.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryIndex) addLocked(key, tag string) {
	tags, ok := m.rows[key]
	if !ok {
		tags = make(map[string]int)
		m.rows[key] = tags
	}
	tags[tag]++

	keys, ok := m.byTag[tag]
	if !ok {
		keys = make(map[string]struct{})
		m.byTag[tag] = keys
	}
	keys[key] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

var (
	_ Index    = (*MemoryIndex)(nil)
	_ Upserter = (*MemoryIndex)(nil)
	_ Pinger   = (*MemoryIndex)(nil)
)
