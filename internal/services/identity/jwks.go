package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSManager fetches and caches the key set used to verify bearer tokens
type JWKSManager struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	mu      sync.RWMutex
	keys    jwk.Set
	expires time.Time
}

// NewJWKSManager creates a manager for one JWKS URL.
func NewJWKSManager(jwksURL string, ttl time.Duration) *JWKSManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWKSManager{
		url:    jwksURL,
		client: &http.Client{Timeout: 5 * time.Second},
		ttl:    ttl,
	}
}

// GetJWKS returns the cached key set, refreshing it once the TTL has passed.
// A stale set is served if a refresh fails.
func (m *JWKSManager) GetJWKS(ctx context.Context) (jwk.Set, error) {
	m.mu.RLock()
	keys, fresh := m.keys, time.Now().Before(m.expires)
	m.mu.RUnlock()
	if keys != nil && fresh {
		return keys, nil
	}

	fetched, err := m.fetchJWKS(ctx)
	if err != nil {
		if keys != nil {
			return keys, nil
		}
		return nil, err
	}

	m.mu.Lock()
	m.keys = fetched
	m.expires = time.Now().Add(m.ttl)
	m.mu.Unlock()
	return fetched, nil
}

func (m *JWKSManager) fetchJWKS(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return keys, nil
}
