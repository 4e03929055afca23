package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// VerifierConfig selects how bearer tokens are verified. Exactly one of
// HMACSecret or JWKS must be set.
type VerifierConfig struct {
	HMACSecret []byte
	JWKS       *JWKSManager
	Issuer     string
	Audience   string
	Skew       time.Duration
}

// Verifier verifies JWT bearer tokens with jwx
type Verifier struct {
	cfg VerifierConfig
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if (len(cfg.HMACSecret) == 0) == (cfg.JWKS == nil) {
		return nil, errors.New("exactly one of an HMAC secret or a JWKS URL is required")
	}
	if cfg.Skew <= 0 {
		cfg.Skew = 30 * time.Second
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify checks the signature plus exp and nbf, and issuer and audience when configured.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParseOption{
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.cfg.Skew),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	if v.cfg.JWKS != nil {
		keys, err := v.cfg.JWKS.GetJWKS(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}
		opts = append(opts, jwt.WithKeySet(keys, jws.WithInferAlgorithmFromKey(true)))
	} else {
		opts = append(opts, jwt.WithKey(jwa.HS256, v.cfg.HMACSecret))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
	}
	if exp := token.Expiration(); !exp.IsZero() {
		claims.Exp = exp.Unix()
	}
	if iat := token.IssuedAt(); !iat.IsZero() {
		claims.Iat = iat.Unix()
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}
	if uid, ok := token.Get("user_id"); ok {
		switch val := uid.(type) {
		case string:
			claims.UserID = val
		case float64:
			claims.UserID = fmt.Sprintf("%.0f", val)
		}
	}
	return claims, nil
}
