// Package cache defines the key/value backend contract wrapped by tagcache.
//
// A Backend stores opaque payloads with a TTL and knows nothing about tags.
// The package provides a bounded in-memory backend, a Redis backend, TTL
// policies, deterministic key derivation and a factory Registry that maps
// configuration identifiers to backend constructors.
package cache
