package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func apiKeyRequest(header, key string) *AuthRequest {
	h := http.Header{}
	if key != "" {
		h.Set(header, key)
	}
	return &AuthRequest{Headers: h}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	store := NewMemoryAPIKeyStore(
		APIKey{ID: "k1", Hash: HashAPIKey("live-key"), Principal: "deployer", Roles: []string{"writer"}},
		APIKey{ID: "k2", Hash: HashAPIKey("old-key"), Principal: "retired", ExpiresAt: time.Now().Add(-time.Hour)},
	)
	a := NewAPIKeyAuthenticator("", store)

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid", "live-key", nil},
		{"surrounding space", "  live-key ", nil},
		{"unknown", "nope", ErrInvalidCredentials},
		{"expired", "old-key", ErrTokenExpired},
		{"missing", "", ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Authenticate(context.Background(), apiKeyRequest(DefaultAPIKeyHeader, tt.key))
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if tt.wantErr != nil {
				if result.Authenticated || !errors.Is(result.Error, tt.wantErr) {
					t.Fatalf("result = %+v, want %v", result, tt.wantErr)
				}
				return
			}
			if !result.Authenticated || result.Identity.Principal != "deployer" || result.Identity.Claims["key_id"] != "k1" {
				t.Fatalf("result = %+v", result)
			}
		})
	}
}

func TestAPIKeyAuthenticator_HeaderIsCaseInsensitive(t *testing.T) {
	a := NewAPIKeyAuthenticator("", NewMemoryAPIKeyStore(APIKey{Hash: HashAPIKey("k"), Principal: "p"}))
	req := &AuthRequest{Headers: http.Header{"X-Api-Key": {"k"}}}

	if !a.Supports(context.Background(), req) {
		t.Fatal("canonical header form not supported")
	}
}

func TestMemoryAPIKeyStore_Remove(t *testing.T) {
	hash := HashAPIKey("k")
	store := NewMemoryAPIKeyStore(APIKey{Hash: hash, Principal: "p"})
	store.Remove(hash)

	got, err := store.Lookup(context.Background(), hash)
	if err != nil || got != nil {
		t.Fatalf("Lookup() = %v, %v; want nil, nil", got, err)
	}
}
