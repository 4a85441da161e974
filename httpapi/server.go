package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jonwraymond/tagcache/auth"
	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/health"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/resilience"
	"github.com/jonwraymond/tagcache/tagcache"
)

// DefaultMaxBodyBytes bounds PUT payloads when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 8 << 20

// ErrNilStore is returned by New without a store.
var ErrNilStore = errors.New("httpapi: store is nil")

// Store is the cache served by the API. *tagcache.TagCache implements it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: the tagcache and cache sentinels select the response status.
type Store interface {
	Load(ctx context.Context, key string, skipValidity bool) ([]byte, bool, error)
	Test(ctx context.Context, key string) (time.Time, bool, error)
	Save(ctx context.Context, key string, data []byte, tags []string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Clean(ctx context.Context, mode cache.CleanMode, tags []string) error
	Sweep(ctx context.Context, mode cache.CleanMode, tags []string) (int, error)
	Reconcile(ctx context.Context) (int, error)
}

// Config configures a Server.
type Config struct {
	Store Store

	// Auth guards the /v1 routes. Nil serves every request anonymously.
	Auth *auth.Middleware

	// Health, if set, is served on /healthz, /readyz, /health and /health/:name.
	Health *health.Aggregator

	// Metrics, if set, is served on /metrics.
	Metrics http.Handler

	// Limiter, if set, bounds PUT, DELETE and POST requests. Rejected
	// requests get 429.
	Limiter *resilience.RateLimiter

	// MaxBodyBytes bounds PUT payloads. Default: DefaultMaxBodyBytes
	MaxBodyBytes int64

	// Logger records failed requests. Default: observe.NopLogger()
	Logger observe.Logger
}

// Server is the HTTP handler for the API.
type Server struct {
	store   Store
	auth    *auth.Middleware
	limiter *resilience.RateLimiter
	maxBody int64
	log     observe.Logger
	handler http.Handler
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.NewMiddleware(nil, nil)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	s := &Server{
		store:   cfg.Store,
		auth:    cfg.Auth,
		limiter: cfg.Limiter,
		maxBody: cfg.MaxBodyBytes,
		log:     cfg.Logger,
	}

	router := httprouter.New()
	router.GET("/v1/entries/*key", s.auth.Require(auth.ActionRead, s.getEntry))
	router.HEAD("/v1/entries/*key", s.auth.Require(auth.ActionRead, s.headEntry))
	router.PUT("/v1/entries/*key", s.auth.Require(auth.ActionWrite, s.limited(s.putEntry)))
	router.DELETE("/v1/entries/*key", s.auth.Require(auth.ActionWrite, s.limited(s.deleteEntry)))
	router.POST("/v1/clean", s.auth.Require(auth.ActionClean, s.limited(s.clean)))
	router.POST("/v1/reconcile", s.auth.Require(auth.ActionClean, s.limited(s.reconcile)))

	if cfg.Health != nil {
		health.RegisterHandlers(router, cfg.Health)
	}
	if cfg.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", cfg.Metrics)
	}
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	s.handler = withRequestID(router)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) limited(next httprouter.Handle) httprouter.Handle {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, resilience.ErrRateLimitExceeded.Error())
			return
		}
		next(w, r, ps)
	}
}

var _ Store = (*tagcache.TagCache)(nil)
