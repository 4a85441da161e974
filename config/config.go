package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"

	"github.com/jonwraymond/tagcache/auth"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/tagcache"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TAGCACHE_"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Auth      auth.Config     `yaml:"auth" envPrefix:"AUTH_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Reconcile ReconcileConfig `yaml:"reconcile" envPrefix:"RECONCILE_"`
	Observe   observe.Config  `yaml:"observe" envPrefix:"OBSERVE_"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// MaxBodyBytes bounds PUT payloads.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	// RateLimit bounds mutating requests per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
}

// CacheConfig describes the tag-aware cache.
type CacheConfig struct {
	Backend tagcache.Descriptor `yaml:"backend" envPrefix:"BACKEND_"`
	Index   tagcache.Descriptor `yaml:"index" envPrefix:"INDEX_"`

	TrackUntagged          bool `yaml:"track_untagged" env:"TRACK_UNTAGGED"`
	AllowDuplicateMappings bool `yaml:"allow_duplicate_mappings" env:"ALLOW_DUPLICATE_MAPPINGS"`
	ReconcileOnClean       bool `yaml:"reconcile_on_clean" env:"RECONCILE_ON_CLEAN"`
	SweepConcurrency       int  `yaml:"sweep_concurrency" env:"SWEEP_CONCURRENCY"`
}

// TagCacheConfig converts c into a tagcache.Config. Both descriptors are
// left for tagcache.New to resolve.
func (c CacheConfig) TagCacheConfig(obs observe.Observer) tagcache.Config {
	backend, index := c.Backend, c.Index
	return tagcache.Config{
		BackendSpec:            &backend,
		IndexSpec:              &index,
		TrackUntagged:          c.TrackUntagged,
		AllowDuplicateMappings: c.AllowDuplicateMappings,
		ReconcileOnClean:       c.ReconcileOnClean,
		SweepConcurrency:       c.SweepConcurrency,
		Observer:               obs,
	}
}

// ReconcileConfig schedules background index reconciliation.
type ReconcileConfig struct {
	// Interval between runs. Zero disables the schedule.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Default returns the configuration used for anything the file and
// environment leave unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      8 << 20,
		},
		Cache: CacheConfig{
			Backend:          tagcache.Descriptor{Type: "memory"},
			Index:            tagcache.Descriptor{Type: "memory"},
			SweepConcurrency: tagcache.DefaultSweepConcurrency,
		},
		Reconcile: ReconcileConfig{Interval: 10 * time.Minute},
		Observe: observe.Config{
			ServiceName: "tagcached",
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
	}
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg. Fields absent from data keep their
// current values; unknown fields are rejected.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables under EnvPrefix. A nil
// environ reads the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints and delegates to the auth and
// observe sections.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: server.addr is required", ErrInvalid))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("%w: server.rate_limit and server.rate_burst must not be negative", ErrInvalid))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: server.max_body_bytes must not be negative", ErrInvalid))
	}
	if c.Reconcile.Interval < 0 {
		errs = append(errs, fmt.Errorf("%w: reconcile.interval must not be negative", ErrInvalid))
	}

	tc := c.Cache.TagCacheConfig(nil)
	if err := tc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: cache: %w", ErrInvalid, err))
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: auth: %w", ErrInvalid, err))
	}
	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: observe: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}
