package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Credential is an opaque access token with an optional expiry hint. The
// client holds it in memory only; persistence belongs to the credential
// provider.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialProvider supplies and refreshes the access token. The OAuth
// device flow (or keyring, or environment) behind it is an external
// collaborator.
type CredentialProvider interface {
	Current(ctx context.Context) (Credential, error)
	Refresh(ctx context.Context) (Credential, error)
}

// ErrNoRefresh is returned by providers that cannot mint a new token
var ErrNoRefresh = errors.New("credential provider cannot refresh")

// StaticTokenProvider wraps a fixed token, such as one read from the
// environment. Refresh always fails.
type StaticTokenProvider struct {
	mu    sync.RWMutex
	token string
}

// NewStaticTokenProvider creates a provider around a fixed token
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Current returns the configured token
func (p *StaticTokenProvider) Current(ctx context.Context) (Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Credential{Token: p.token}, nil
}

// Refresh fails; a static token has nowhere to refresh from
func (p *StaticTokenProvider) Refresh(ctx context.Context) (Credential, error) {
	return Credential{}, ErrNoRefresh
}
