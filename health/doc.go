// Package health reports whether a tag cache's backend and tag index are
// usable.
//
// A Checker reports a Status: Healthy, Degraded or Unhealthy. PingChecker
// turns any component with a Ping method into a Checker, BreakerChecker
// reports the state of a resilience.CircuitBreaker and CapacityChecker warns
// when a bounded store is close to full. An Aggregator runs a set of checkers
// and combines their results.
//
// # Usage
//
//	agg := health.NewAggregator()
//	agg.Register("backend", health.NewPingChecker("backend", health.PingFunc(tc.PingBackend)))
//	agg.Register("index", health.NewPingChecker("index", health.PingFunc(tc.PingIndex)))
//
//	router := httprouter.New()
//	health.RegisterHandlers(router, agg)
//
// RegisterHandlers serves /healthz (liveness), /readyz (readiness) and
// /health (per-check JSON).
package health
