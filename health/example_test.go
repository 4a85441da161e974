package health_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/tagcache/health"
)

func ExamplePingChecker() {
	index := health.PingFunc(func(context.Context) error { return errors.New("database is locked") })

	result := health.NewPingChecker("index", index).Check(context.Background())
	fmt.Println(result.Status, result.Message)
	// Output: unhealthy index unreachable
}

func ExampleAggregator() {
	agg := health.NewAggregator(health.AggregatorConfig{Critical: []string{"backend"}})
	agg.Register("backend", health.NewPingChecker("backend", health.PingFunc(func(context.Context) error { return nil })))
	agg.Register("index", health.NewPingChecker("index", health.PingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	results := agg.CheckAll(context.Background())
	fmt.Println(agg.OverallStatus(results))
	// Output: degraded
}
