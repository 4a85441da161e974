package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator. Exactly one of Secret and
// PublicKeyFile selects the verification key.
type JWTConfig struct {
	// Secret is the HS256 shared secret.
	Secret string `yaml:"secret" env:"SECRET"`

	// PublicKeyFile is a PEM RSA or ECDSA public key.
	PublicKeyFile string `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`

	// Issuer is the expected iss claim, when set.
	Issuer string `yaml:"issuer" env:"ISSUER"`

	// Audience is the expected aud claim, when set.
	Audience string `yaml:"audience" env:"AUDIENCE"`

	// RolesClaim is the claim holding the caller's roles.
	// Default: "roles"
	RolesClaim string `yaml:"roles_claim" env:"ROLES_CLAIM"`

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration `yaml:"leeway" env:"LEEWAY"`
}

// Configured reports whether a verification key is set.
func (c JWTConfig) Configured() bool {
	return c.Secret != "" || c.PublicKeyFile != ""
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider returns the same key for every token.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider. key is a []byte HMAC
// secret, *rsa.PublicKey or *ecdsa.PublicKey.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(context.Context, string) (any, error) {
	if p.key == nil {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// LoadPublicKey reads a PEM encoded RSA or ECDSA public key.
func LoadPublicKey(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	if key, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseECPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not an RSA or ECDSA public key", ErrInvalidConfig, path)
	}
	return key, nil
}

// JWTAuthenticator validates bearer tokens from the Authorization header.
type JWTAuthenticator struct {
	config      JWTConfig
	keyProvider KeyProvider
	parser      *jwt.Parser
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config JWTConfig, keyProvider KeyProvider) *JWTAuthenticator {
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(config.Leeway), jwt.WithIssuedAt()}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &JWTAuthenticator{
		config:      config,
		keyProvider: keyProvider,
		parser:      jwt.NewParser(opts...),
	}
}

const bearerPrefix = "Bearer "

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string { return "jwt" }

// Supports returns true if the request carries a bearer token.
func (a *JWTAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return strings.HasPrefix(req.GetHeader("Authorization"), bearerPrefix)
}

// Authenticate validates the bearer token.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	raw, ok := strings.CutPrefix(req.GetHeader("Authorization"), bearerPrefix)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return AuthFailure(ErrMissingCredentials, "jwt"), nil
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := a.keyProvider.GetKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		if err := checkMethod(token.Method, key); err != nil {
			return nil, err
		}
		return key, nil
	})

	switch {
	case err == nil:
		return AuthSuccess(a.buildIdentity(claims)), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthFailure(ErrTokenExpired, "jwt"), nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return AuthFailure(ErrTokenMalformed, "jwt"), nil
	default:
		return AuthFailure(fmt.Errorf("%w: %w", ErrInvalidCredentials, err), "jwt"), nil
	}
}

// checkMethod pins the signing algorithm family to the key type.
func checkMethod(method jwt.SigningMethod, key any) error {
	var ok bool
	switch key.(type) {
	case []byte:
		_, ok = method.(*jwt.SigningMethodHMAC)
	case *rsa.PublicKey:
		_, ok = method.(*jwt.SigningMethodRSA)
	case *ecdsa.PublicKey:
		_, ok = method.(*jwt.SigningMethodECDSA)
	}
	if !ok {
		return fmt.Errorf("unexpected signing method %s", method.Alg())
	}
	return nil
}

func (a *JWTAuthenticator) buildIdentity(claims jwt.MapClaims) *Identity {
	identity := &Identity{
		Method: AuthMethodJWT,
		Claims: make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		identity.Claims[k] = v
	}

	identity.Principal, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}

	switch roles := claims[a.config.RolesClaim].(type) {
	case string:
		identity.Roles = strings.Fields(roles)
	case []any:
		identity.Roles = make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, s)
			}
		}
	}
	return identity
}

var (
	_ Authenticator = (*JWTAuthenticator)(nil)
	_ KeyProvider   = (*StaticKeyProvider)(nil)
)
