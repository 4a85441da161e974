package cache

import "time"

// Policy configures entry lifetimes for a backend.
type Policy struct {
	// DefaultTTL is the TTL used when Save is called with ttl=0.
	// If zero, entries saved with ttl=0 never expire.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`

	// MaxTTL is the maximum allowed TTL. Overrides, defaults and NoExpiry
	// are clamped to this. If zero, no maximum is enforced.
	MaxTTL time.Duration `mapstructure:"max_ttl" yaml:"max_ttl"`
}

// DefaultPolicy returns the default lifetime policy.
// DefaultTTL: 5 minutes, MaxTTL: none
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
	}
}

// NoExpiryPolicy returns a policy under which entries never expire unless a
// TTL is given explicitly.
func NoExpiryPolicy() Policy {
	return Policy{}
}

// EffectiveTTL resolves a Save ttl argument. A zero result means the entry
// does not expire.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	var ttl time.Duration
	switch {
	case override > 0:
		ttl = override
	case override == 0:
		ttl = p.DefaultTTL
	default:
		ttl = 0
	}

	// Clamp to MaxTTL if set; infinite lifetimes are clamped too
	if p.MaxTTL > 0 && (ttl == 0 || ttl > p.MaxTTL) {
		ttl = p.MaxTTL
	}

	return ttl
}

// ExpiresAt returns the expiry instant for a ttl resolved from now, or the
// zero time when the entry does not expire.
func (p Policy) ExpiresAt(now time.Time, override time.Duration) time.Time {
	ttl := p.EffectiveTTL(override)
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
