package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// NoExpiry requests an entry that never expires (subject to Policy.MaxTTL).
const NoExpiry time.Duration = -1

// Sentinel errors for cache operations.
var (
	ErrNilBackend           = errors.New("cache: backend is nil")
	ErrInvalidKey           = errors.New("cache: key is invalid")
	ErrKeyTooLong           = errors.New("cache: key exceeds max length")
	ErrUnsupportedCleanMode = errors.New("cache: clean mode not supported")
)

// CleanMode selects which entries a Clean call removes.
type CleanMode int

const (
	// CleanAll removes every entry.
	CleanAll CleanMode = iota
	// CleanOld removes entries whose lifetime has elapsed.
	CleanOld
	// CleanMatchingTag removes entries carrying at least one of the given tags.
	CleanMatchingTag
	// CleanNotMatchingTag removes entries carrying none of the given tags.
	CleanNotMatchingTag
)

// String returns the configuration name of the mode.
func (m CleanMode) String() string {
	switch m {
	case CleanAll:
		return "all"
	case CleanOld:
		return "old"
	case CleanMatchingTag:
		return "matching_tag"
	case CleanNotMatchingTag:
		return "not_matching_tag"
	default:
		return "unknown"
	}
}

// ParseCleanMode parses the configuration name of a mode.
func ParseCleanMode(s string) (CleanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return CleanAll, nil
	case "old":
		return CleanOld, nil
	case "matching_tag", "matchingtag":
		return CleanMatchingTag, nil
	case "not_matching_tag", "notmatchingtag":
		return CleanNotMatchingTag, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCleanMode, s)
	}
}

// Backend is the key/value store wrapped by a tag-aware cache.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods should honor cancellation/deadlines where applicable.
//   - Errors: a miss is reported as ok=false with a nil error; errors are
//     reserved for I/O failures.
//   - Tags: tags passed to Save may be ignored by backends without tag support.
type Backend interface {
	// Load returns the payload for key. When skipValidity is true an expired
	// but not yet evicted entry may still be returned.
	Load(ctx context.Context, key string, skipValidity bool) ([]byte, bool, error)

	// Test reports the last-modified time of a present entry.
	Test(ctx context.Context, key string) (time.Time, bool, error)

	// Save stores data under key. ttl=0 selects the backend default and
	// NoExpiry stores without expiry.
	Save(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error

	// Remove deletes key. Idempotent - no error on miss.
	Remove(ctx context.Context, key string) error

	// Clean removes entries according to mode.
	Clean(ctx context.Context, mode CleanMode, tags []string) error
}

// Toucher is implemented by backends that can extend an entry's lifetime.
type Toucher interface {
	Touch(ctx context.Context, key string, extra time.Duration) (bool, error)
}

// KeyLister is implemented by backends that can enumerate stored keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
