// Package httpapi serves a tag-aware cache over HTTP.
//
// Routes:
//
//	GET    /v1/entries/*key   payload, 404 on miss
//	HEAD   /v1/entries/*key   200 or 404 with Last-Modified
//	PUT    /v1/entries/*key   store the body; ?tag=a&tag=b&ttl=30s
//	DELETE /v1/entries/*key   remove the entry and its tag rows
//	POST   /v1/clean          {"mode":"matching_tag","tags":["a"]}
//	POST   /v1/reconcile      drop tag rows of entries that no longer exist
//
// Health probes and /metrics are served without authentication when
// configured. Every response carries an X-Request-ID header.
package httpapi
