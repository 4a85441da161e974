package tagindex

import (
	"context"
	"errors"
	"sort"
)

// Sentinel errors for index operations.
var (
	ErrNilIndex = errors.New("tagindex: index is nil")
	ErrClosed   = errors.New("tagindex: index is closed")
	ErrEmptyKey = errors.New("tagindex: cache key is empty")
)

// Index is the durable key/tag mapping store.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent readers and writers.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Results: Find methods return distinct keys in ascending order.
// - Tags: the empty string is a valid tag.
type Index interface {
	// Exists reports whether a (key, tag) row exists.
	Exists(ctx context.Context, key, tag string) (bool, error)

	// Insert adds a (key, tag) row. Implementations may store duplicates.
	Insert(ctx context.Context, key, tag string) error

	// DeleteByKey removes every row for key. Idempotent.
	DeleteByKey(ctx context.Context, key string) error

	// FindKeysByTagIn returns keys having at least one row whose tag is in tags.
	FindKeysByTagIn(ctx context.Context, tags []string) ([]string, error)

	// FindKeysByTagNotIn returns keys having rows but none whose tag is in tags.
	// With no tags it returns every key that has a row.
	FindKeysByTagNotIn(ctx context.Context, tags []string) ([]string, error)

	// Close releases the index's resources.
	Close() error
}

// Upserter is implemented by indexes that can insert a row only when it is
// absent as a single atomic step. It reports whether a row was written.
type Upserter interface {
	InsertIfAbsent(ctx context.Context, key, tag string) (bool, error)
}

// Pinger is implemented by indexes that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NormalizeTags returns the distinct tags in ascending order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
