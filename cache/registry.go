package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// Registry errors.
var (
	ErrInvalidRegistration = errors.New("cache: invalid backend registration")
	ErrUnknownBackend      = errors.New("cache: backend type is not registered")
)

// BackendFactory creates a Backend from descriptor options.
type BackendFactory func(options map[string]any) (Backend, error)

// Registry maps configuration identifiers to backend factories.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendFactory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]BackendFactory)}
}

// Register adds a backend factory.
func (r *Registry) Register(name string, factory BackendFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("cache: backend %q already registered", name)
	}
	r.backends[name] = factory
	return nil
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (BackendFactory, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	factory, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return factory, nil
}

// Create instantiates a backend by name.
func (r *Registry) Create(name string, options map[string]any) (Backend, error) {
	factory, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return factory(options)
}

// List returns registered backend names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes descriptor options into target, accepting duration
// strings such as "30s" and rejecting unknown keys.
func DecodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func newMemoryFromOptions(options map[string]any) (Backend, error) {
	config := MemoryConfig{Policy: DefaultPolicy()}
	if err := DecodeOptions(options, &config); err != nil {
		return nil, fmt.Errorf("cache: memory backend: %w", err)
	}
	return NewMemoryBackend(config)
}

func newRedisFromOptions(options map[string]any) (Backend, error) {
	config := RedisConfig{Policy: DefaultPolicy()}
	if err := DecodeOptions(options, &config); err != nil {
		return nil, fmt.Errorf("cache: redis backend: %w", err)
	}
	b := NewRedisBackend(NewRedisClient(config), config.Prefix, config.Policy)
	b.ownsClient = true
	return b, nil
}

// DefaultRegistry holds the built-in backends: "memory" and "redis".
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register("memory", newMemoryFromOptions)
	_ = r.Register("redis", newRedisFromOptions)
	return r
}()
