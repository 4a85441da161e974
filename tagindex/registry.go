package tagindex

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/resilience"
)

// Registry errors.
var (
	ErrInvalidRegistration = errors.New("tagindex: invalid index registration")
	ErrUnknownIndex        = errors.New("tagindex: index type is not registered")
)

// ResilienceOption is the descriptor option key holding resilience.Config
// settings. Registry.Create strips it before calling the factory and wraps
// the result with Resilient.
const ResilienceOption = "resilience"

// Factory opens an Index from descriptor options.
type Factory func(ctx context.Context, options map[string]any) (Index, error)

// Registry maps configuration identifiers to index factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory

	// OnStateChange observes circuit breaker transitions of wrapped indexes.
	OnStateChange func(name string, from, to resilience.State)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("tagindex: index %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (Factory, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}
	return factory, nil
}

// Create opens an index by name. A "resilience" option wraps the result.
func (r *Registry) Create(ctx context.Context, name string, options map[string]any) (Index, error) {
	factory, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	var guard resilience.Config
	if raw, ok := options[ResilienceOption]; ok {
		opts, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tagindex: %s: %q option must be a map", name, ResilienceOption)
		}
		if err := cache.DecodeOptions(opts, &guard); err != nil {
			return nil, fmt.Errorf("tagindex: %s: resilience: %w", name, err)
		}
		options = maps.Clone(options)
		delete(options, ResilienceOption)
	}

	idx, err := factory(ctx, options)
	if err != nil {
		return nil, err
	}
	if guard.Enabled() {
		idx = NewResilient(idx, guard.NewExecutor("tagindex."+name, r.OnStateChange))
	}
	return idx, nil
}

// List returns registered index names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RedisConfig configures a Redis index built by the registry.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Prefix       string        `mapstructure:"prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func openMemory(_ context.Context, options map[string]any) (Index, error) {
	if len(options) > 0 {
		return nil, fmt.Errorf("tagindex: memory index takes no options")
	}
	return NewMemoryIndex(), nil
}

func openSQLite(ctx context.Context, options map[string]any) (Index, error) {
	var config SQLiteConfig
	if err := cache.DecodeOptions(options, &config); err != nil {
		return nil, fmt.Errorf("tagindex: sqlite index: %w", err)
	}
	return OpenSQLite(ctx, config)
}

func openRedis(ctx context.Context, options map[string]any) (Index, error) {
	var config RedisConfig
	if err := cache.DecodeOptions(options, &config); err != nil {
		return nil, fmt.Errorf("tagindex: redis index: %w", err)
	}
	client := cache.NewRedisClient(cache.RedisConfig{
		Addr:         config.Addr,
		Username:     config.Username,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tagindex: redis index: ping: %w", err)
	}
	idx := NewRedisIndex(client, config.Prefix)
	idx.ownsClient = true
	return idx, nil
}

// DefaultRegistry holds the built-in indexes: "memory", "sqlite" and "redis".
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register("memory", openMemory)
	_ = r.Register("sqlite", openSQLite)
	_ = r.Register("redis", openRedis)
	return r
}()
