// Package identity derives the client identity a request is counted against.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/request"
	"go.uber.org/zap"
)

const (
	// DefaultAPIKeyHeader carries API keys
	DefaultAPIKeyHeader = "X-API-Key"
	// DefaultMaxValueLength caps identity values; longer values are hashed
	DefaultMaxValueLength = 256
)

// Config configures an Identifier
type Config struct {
	APIKeyHeader   string
	MaxValueLength int
}

// Identifier maps a request and client type to a ClientIdentity.
// Every type falls back to the caller's IP when its source is absent or invalid.
type Identifier struct {
	apiKeyHeader string
	maxLen       int
	verifier     TokenVerifier
	logger       *zap.Logger
}

// NewIdentifier creates an Identifier. verifier may be nil, in which case USER_ID falls back to IP.
func NewIdentifier(cfg Config, verifier TokenVerifier, zapLogger *zap.Logger) *Identifier {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.MaxValueLength <= 0 {
		cfg.MaxValueLength = DefaultMaxValueLength
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Identifier{
		apiKeyHeader: cfg.APIKeyHeader,
		maxLen:       cfg.MaxValueLength,
		verifier:     verifier,
		logger:       zapLogger,
	}
}

// Identify never fails.
func (i *Identifier) Identify(r *http.Request, clientType models.ClientType, customKeyName string) models.ClientIdentity {
	switch clientType {
	case models.ClientTypeAPIKey:
		if v := strings.TrimSpace(r.Header.Get(i.apiKeyHeader)); v != "" {
			return i.tagged(models.IdentityPrefixAPIKey, v)
		}
	case models.ClientTypeUserID:
		if sub := i.subject(r); sub != "" {
			return i.tagged(models.IdentityPrefixUser, sub)
		}
	case models.ClientTypeCustom:
		// The custom header is trusted as supplied; deployments must strip it at the edge if clients can forge it.
		if customKeyName != "" {
			if v := strings.TrimSpace(r.Header.Get(customKeyName)); v != "" {
				return i.tagged(models.IdentityPrefixCustom, v)
			}
		}
	}
	return i.ip(r)
}

func (i *Identifier) ip(r *http.Request) models.ClientIdentity {
	return i.tagged(models.IdentityPrefixIP, request.ClientIP(r))
}

// subject returns the verified token subject, or "" when absent or invalid
func (i *Identifier) subject(r *http.Request) string {
	if i.verifier == nil {
		return ""
	}
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return ""
	}

	claims, err := i.verifier.Verify(r.Context(), token)
	if err != nil {
		i.logger.Debug("bearer_token_rejected",
			zap.String("path", logger.SanitizePath(r.URL.Path)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return ""
	}
	return strings.TrimSpace(claims.Subject())
}

// tagged prefixes v, hashing values longer than the cap
func (i *Identifier) tagged(prefix, v string) models.ClientIdentity {
	if len(v) > i.maxLen {
		sum := sha256.Sum256([]byte(v))
		v = "sha256-" + hex.EncodeToString(sum[:])
	}
	return models.ClientIdentity(prefix + v)
}
