// Package observe provides logging, tracing and metrics for cache operations.
//
// An Observer bundles an OpenTelemetry tracer and meter with a zap-backed
// structured Logger. Middleware wraps a single cache operation with a span,
// the operation counters and a log line. Exporters are chosen by name in
// package exporters.
package observe
