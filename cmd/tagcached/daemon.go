package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/tagcache/auth"
	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/config"
	"github.com/jonwraymond/tagcache/health"
	"github.com/jonwraymond/tagcache/httpapi"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/resilience"
	"github.com/jonwraymond/tagcache/tagcache"
	"github.com/jonwraymond/tagcache/tagindex"
)

// daemon owns everything run builds. Close releases it in reverse order.
type daemon struct {
	cfg     config.Config
	obs     observe.Observer
	log     observe.Logger
	index   tagindex.Index
	cache   *tagcache.TagCache
	health  *health.Aggregator
	handler http.Handler
}

func newDaemon(ctx context.Context, cfg config.Config) (_ *daemon, err error) {
	d := &daemon{cfg: cfg}
	defer func() {
		if err != nil {
			_ = d.Close(context.WithoutCancel(ctx))
		}
	}()

	d.obs, err = observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	d.log = d.obs.Logger()

	// The index is opened here rather than lazily so its circuit breaker can
	// be reported by the health checks.
	indexes := tagindex.DefaultRegistry
	indexes.OnStateChange = func(name string, from, to resilience.State) {
		d.log.Warn(context.Background(), "index circuit state changed",
			observe.Field{Key: "breaker", Value: name},
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
	}
	d.index, err = indexes.Create(ctx, cfg.Cache.Index.Type, cfg.Cache.Index.Options)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	tcCfg := cfg.Cache.TagCacheConfig(d.obs)
	tcCfg.IndexSpec = nil
	tcCfg.Index = d.index
	d.cache, err = tagcache.New(tcCfg)
	if err != nil {
		return nil, err
	}

	d.health = newHealth(d.cache, d.index)

	authMW, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if !authMW.Enabled() {
		d.log.Warn(ctx, "authentication disabled; the API is open")
	}

	var limiter *resilience.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:  cfg.Server.RateLimit,
			Burst: cfg.Server.RateBurst,
		})
	}
	var metrics http.Handler
	if cfg.Observe.Metrics.Enabled && cfg.Observe.Metrics.Exporter == "prometheus" {
		metrics = promhttp.Handler()
	}

	d.handler, err = httpapi.New(httpapi.Config{
		Store:        d.cache,
		Auth:         authMW,
		Health:       d.health,
		Metrics:      metrics,
		Limiter:      limiter,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       d.log,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newHealth(tc *tagcache.TagCache, idx tagindex.Index) *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Critical: []string{"backend", "index"}})
	agg.Register("backend", health.NewPingChecker("backend", health.PingFunc(tc.PingBackend)))
	agg.Register("index", health.NewPingChecker("index", health.PingFunc(tc.PingIndex)))

	if r, ok := idx.(*tagindex.Resilient); ok {
		if cb := r.Executor().CircuitBreaker(); cb != nil {
			agg.Register("index_circuit", health.NewBreakerChecker("index_circuit", cb))
		}
	}
	if mem, ok := tc.Backend().(*cache.MemoryBackend); ok {
		agg.Register("backend_capacity", health.NewCapacityChecker("backend_capacity", mem, health.CapacityCheckerConfig{}))
	}
	return agg
}

// reconcileLoop runs Reconcile every interval until ctx is done.
func (d *daemon) reconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.cache.Reconcile(ctx); err != nil && ctx.Err() == nil {
				d.log.Error(ctx, "scheduled reconcile failed", observe.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// Close releases the cache, the index and the observer.
func (d *daemon) Close(ctx context.Context) error {
	var errs []error
	if d.cache != nil {
		errs = append(errs, d.cache.Close())
	}
	if d.index != nil {
		errs = append(errs, d.index.Close())
	}
	if d.obs != nil {
		errs = append(errs, d.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// run serves the API on cfg.Server.Addr until ctx is done, then drains
// in-flight requests.
func run(ctx context.Context, cfg config.Config) error {
	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = d.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("listen: %w", err)
	}
	return d.serve(ctx, ln)
}

func (d *daemon) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: d.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       d.cfg.Server.ReadTimeout,
		WriteTimeout:      d.cfg.Server.WriteTimeout,
		IdleTimeout:       d.cfg.Server.IdleTimeout,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	if d.cfg.Reconcile.Interval > 0 {
		go d.reconcileLoop(loopCtx, d.cfg.Reconcile.Interval)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	d.log.Info(ctx, "tagcached listening",
		observe.Field{Key: "addr", Value: ln.Addr().String()},
		observe.Field{Key: "backend", Value: d.cfg.Cache.Backend.Type},
		observe.Field{Key: "index", Value: d.cfg.Cache.Index.Type},
	)

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Server.ShutdownTimeout)
		defer cancel()
		d.log.Info(shutdownCtx, "shutting down")
		err = srv.Shutdown(shutdownCtx)
		stopLoop()
		return errors.Join(err, d.Close(shutdownCtx))
	}
	stopLoop()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return errors.Join(err, d.Close(context.WithoutCancel(ctx)))
}
