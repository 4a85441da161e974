package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultAPIKeyHeader carries API keys.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKey is a registered key. Only the SHA-256 hash of the key is stored.
type APIKey struct {
	ID        string    `yaml:"id" env:"ID"`
	Hash      string    `yaml:"hash" env:"HASH"`
	Principal string    `yaml:"principal" env:"PRINCIPAL"`
	Roles     []string  `yaml:"roles" env:"ROLES"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// APIKeyStore looks keys up by hash.
type APIKeyStore interface {
	// Lookup returns nil when no key has keyHash.
	Lookup(ctx context.Context, keyHash string) (*APIKey, error)
}

// APIKeyAuthenticator validates API keys.
type APIKeyAuthenticator struct {
	header string
	store  APIKeyStore
}

// NewAPIKeyAuthenticator creates an API key authenticator reading header,
// or DefaultAPIKeyHeader when header is empty.
func NewAPIKeyAuthenticator(header string, store APIKeyStore) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{header: header, store: store}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return "api_key" }

// Supports returns true if the request carries the API key header.
func (a *APIKeyAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.header) != ""
}

// Authenticate validates the API key.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	key := strings.TrimSpace(req.GetHeader(a.header))
	if key == "" {
		return AuthFailure(ErrMissingCredentials, "api_key"), nil
	}

	info, err := a.store.Lookup(ctx, HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	if info == nil {
		return AuthFailure(ErrInvalidCredentials, "api_key"), nil
	}
	if !info.ExpiresAt.IsZero() && time.Now().After(info.ExpiresAt) {
		return AuthFailure(ErrTokenExpired, "api_key"), nil
	}

	return AuthSuccess(&Identity{
		Principal: info.Principal,
		Roles:     info.Roles,
		Method:    AuthMethodAPIKey,
		ExpiresAt: info.ExpiresAt,
		Claims:    map[string]any{"key_id": info.ID},
	}), nil
}

// HashAPIKey hashes an API key using SHA-256 for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// MemoryAPIKeyStore is an in-memory API key store.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey
}

// NewMemoryAPIKeyStore creates a store holding keys.
func NewMemoryAPIKeyStore(keys ...APIKey) *MemoryAPIKeyStore {
	s := &MemoryAPIKeyStore{keys: make(map[string]*APIKey, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Lookup retrieves an API key by its hash.
func (s *MemoryAPIKeyStore) Lookup(_ context.Context, keyHash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[strings.ToLower(keyHash)], nil
}

// Add registers a key.
func (s *MemoryAPIKeyStore) Add(key APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[strings.ToLower(key.Hash)] = &key
}

// Remove deletes the key with keyHash.
func (s *MemoryAPIKeyStore) Remove(keyHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, strings.ToLower(keyHash))
}

var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ APIKeyStore   = (*MemoryAPIKeyStore)(nil)
)
