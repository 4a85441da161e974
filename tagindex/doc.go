// Package tagindex stores the durable (cache_key, tag) mapping used by
// tagcache to invalidate entries by tag.
//
// An Index answers two set-membership questions: which keys carry any of a
// set of tags, and which keys carry none of them. Implementations are provided
// for process memory, SQLite and Redis, and can be constructed by name through
// a Registry. Any index can be wrapped with Resilient to run its calls through
// a circuit breaker, retry and timeout.
package tagindex
