package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultKeyPrefix prefixes keys produced by DefaultKeyer.
const DefaultKeyPrefix = "tc"

// Keyer derives deterministic cache keys from explicit request context.
//
// Everything that influences the cached value must be passed in input; keyers
// never consult ambient or global state.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key for input within namespace.
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct {
	prefix string
}

// NewDefaultKeyer creates a keyer using DefaultKeyPrefix.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{prefix: DefaultKeyPrefix}
}

// NewPrefixedKeyer creates a keyer with a custom prefix.
func NewPrefixedKeyer(prefix string) *DefaultKeyer {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &DefaultKeyer{prefix: prefix}
}

// Key generates a deterministic cache key.
// Format: <prefix>:<namespace>:<hash>
// where hash is the first 16 characters of SHA-256(canonical JSON(input))
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return "", fmt.Errorf("%w: namespace is required", ErrInvalidKey)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, input); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	key := k.prefix + ":" + namespace + ":" + hex.EncodeToString(sum[:8])
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// writeCanonical writes JSON with object keys sorted at every depth.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return writeCanonical(buf, m)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// encoding/json already sorts map keys of other map types
		return writeJSON(buf, v)
	}
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
