package auth

import (
	"fmt"
)

// Config configures authentication for the admin API.
type Config struct {
	// Enabled turns authentication on. When off every request is anonymous.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	JWT JWTConfig `yaml:"jwt" envPrefix:"JWT_"`

	// APIKeyHeader overrides DefaultAPIKeyHeader.
	APIKeyHeader string `yaml:"api_key_header" env:"API_KEY_HEADER"`

	APIKeys []APIKey `yaml:"api_keys" envPrefix:"API_KEYS"`

	// Roles grants actions by role. When empty every authenticated caller
	// may perform every action.
	Roles map[string]RoleConfig `yaml:"roles"`

	// DefaultRole applies to identities without roles.
	DefaultRole string `yaml:"default_role" env:"DEFAULT_ROLE"`
}

// Validate checks that an enabled configuration has a credential source.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWT.Secret != "" && c.JWT.PublicKeyFile != "" {
		return fmt.Errorf("%w: jwt: set secret or public_key_file, not both", ErrInvalidConfig)
	}
	if !c.JWT.Configured() && len(c.APIKeys) == 0 {
		return fmt.Errorf("%w: enabled without jwt or api_keys", ErrInvalidConfig)
	}
	for i, k := range c.APIKeys {
		if k.Hash == "" || k.Principal == "" {
			return fmt.Errorf("%w: api_keys[%d]: hash and principal are required", ErrInvalidConfig, i)
		}
	}
	if c.DefaultRole != "" {
		if _, ok := c.Roles[c.DefaultRole]; !ok {
			return fmt.Errorf("%w: default_role %q is not defined", ErrInvalidConfig, c.DefaultRole)
		}
	}
	return nil
}

// New builds the Middleware described by cfg.
func New(cfg Config) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NewMiddleware(nil, nil), nil
	}

	var authenticators []Authenticator
	if cfg.JWT.Configured() {
		var key any = []byte(cfg.JWT.Secret)
		if cfg.JWT.PublicKeyFile != "" {
			pub, err := LoadPublicKey(cfg.JWT.PublicKeyFile)
			if err != nil {
				return nil, err
			}
			key = pub
		}
		authenticators = append(authenticators, NewJWTAuthenticator(cfg.JWT, NewStaticKeyProvider(key)))
	}
	if len(cfg.APIKeys) > 0 {
		authenticators = append(authenticators,
			NewAPIKeyAuthenticator(cfg.APIKeyHeader, NewMemoryAPIKeyStore(cfg.APIKeys...)))
	}

	var authz Authorizer
	if len(cfg.Roles) > 0 {
		authz = NewRoleAuthorizer(cfg.Roles, cfg.DefaultRole)
	}
	return NewMiddleware(NewCompositeAuthenticator(authenticators...), authz), nil
}
