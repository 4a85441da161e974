package tagcache

import (
	"fmt"
	"strings"

	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/tagindex"
)

// DefaultSweepConcurrency is the number of keys removed in parallel by a sweep.
const DefaultSweepConcurrency = 8

// Descriptor names a registered implementation and its options.
type Descriptor struct {
	Type    string         `yaml:"type" mapstructure:"type" env:"TYPE"`
	Options map[string]any `yaml:"options" mapstructure:"options"`
}

// Config configures a TagCache. Exactly one of Backend and BackendSpec, and
// exactly one of Index and IndexSpec, must be set.
type Config struct {
	// Backend is a ready inner cache.
	Backend cache.Backend

	// BackendSpec builds the inner cache through Backends at New.
	BackendSpec *Descriptor

	// Index is a ready tag index.
	Index tagindex.Index

	// IndexSpec opens the tag index through Indexes on first use.
	IndexSpec *Descriptor

	// TrackUntagged records keys saved without tags under UntaggedTag so that
	// not-matching sweeps can find them.
	TrackUntagged bool

	// AllowDuplicateMappings skips the uniqueness check on Save and leaves
	// rows in place on Remove.
	AllowDuplicateMappings bool

	// ReconcileOnClean runs Reconcile after CleanAll and CleanOld.
	ReconcileOnClean bool

	// SweepConcurrency bounds parallel removes in sweeps and reconcile.
	// Default: DefaultSweepConcurrency
	SweepConcurrency int

	// Observer receives logs, spans and metrics. Default: observe.NewNoop()
	Observer observe.Observer

	// Backends resolves BackendSpec. Default: cache.DefaultRegistry
	Backends *cache.Registry

	// Indexes resolves IndexSpec. Default: tagindex.DefaultRegistry
	Indexes *tagindex.Registry
}

// Validate checks the configuration without building anything.
func (c *Config) Validate() error {
	backends := c.Backends
	if backends == nil {
		backends = cache.DefaultRegistry
	}
	indexes := c.Indexes
	if indexes == nil {
		indexes = tagindex.DefaultRegistry
	}

	switch {
	case c.Backend == nil && c.BackendSpec == nil:
		return &ConfigError{Field: "backend", Reason: "required"}
	case c.Backend != nil && c.BackendSpec != nil:
		return &ConfigError{Field: "backend", Reason: "set either an instance or a descriptor, not both"}
	case c.BackendSpec != nil:
		if err := validateDescriptor("backend", c.BackendSpec, func(name string) error {
			_, err := backends.Lookup(name)
			return err
		}); err != nil {
			return err
		}
	}

	switch {
	case c.Index == nil && c.IndexSpec == nil:
		return &ConfigError{Field: "index", Reason: "required"}
	case c.Index != nil && c.IndexSpec != nil:
		return &ConfigError{Field: "index", Reason: "set either an instance or a descriptor, not both"}
	case c.IndexSpec != nil:
		if err := validateDescriptor("index", c.IndexSpec, func(name string) error {
			_, err := indexes.Lookup(name)
			return err
		}); err != nil {
			return err
		}
	}

	if c.SweepConcurrency < 0 {
		return &ConfigError{Field: "sweep_concurrency", Reason: fmt.Sprintf("must not be negative, got %d", c.SweepConcurrency)}
	}
	return nil
}

func validateDescriptor(field string, d *Descriptor, lookup func(string) error) error {
	if strings.TrimSpace(d.Type) == "" {
		return &ConfigError{Field: field + ".type", Reason: "required"}
	}
	if err := lookup(d.Type); err != nil {
		return &ConfigError{Field: field + ".type", Reason: "unknown type", Err: err}
	}
	return nil
}
