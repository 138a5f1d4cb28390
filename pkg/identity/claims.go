package identity

import "time"

// IdentityClaims are self-reported attributes extracted from a compact ID
// token. They describe an identity prior to any trust decision; whether they
// were cryptographically verified depends on which component produced them
// (Decoder vs OIDCVerifier). Claims are consumed once per authentication and
// never persisted verbatim.
type IdentityClaims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	IssuedAt int64  `json:"iat,omitempty"`
	Expiry   int64  `json:"exp,omitempty"`
}

// IssuedTime returns the iat claim as a time, zero if absent.
func (c *IdentityClaims) IssuedTime() time.Time {
	if c.IssuedAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.IssuedAt, 0)
}

// ExpiryTime returns the exp claim as a time, zero if absent.
func (c *IdentityClaims) ExpiryTime() time.Time {
	if c.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(c.Expiry, 0)
}
