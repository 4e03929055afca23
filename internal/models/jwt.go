package models

// JWTClaims represents the claims extracted from a verified bearer token
type JWTClaims struct {
	Sub    string `json:"sub"`     // Subject
	UserID string `json:"user_id"` // Private user id claim, used when sub is absent
	Exp    int64  `json:"exp"`     // Expiration time
	Iat    int64  `json:"iat"`     // Issued at
	Iss    string `json:"iss"`     // Issuer
	Aud    string `json:"aud"`     // Audience
}

// Subject returns the claim used as the user identity.
func (c *JWTClaims) Subject() string {
	if c == nil {
		return ""
	}
	if c.Sub != "" {
		return c.Sub
	}
	return c.UserID
}
