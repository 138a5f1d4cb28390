package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedToken is returned when a compact token cannot be split,
// decoded, or parsed, or when required claims are missing.
var ErrMalformedToken = errors.New("malformed identity token")

// Decoder extracts claims from a compact token WITHOUT verifying its
// signature, issuer, or audience. The result is an unauthenticated assertion
// about self-reported identity; it is suitable for display and for
// development mode, never for a production trust decision. Use OIDCVerifier
// for that.
type Decoder struct{}

// NewDecoder creates a claims decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode splits the compact token and parses its payload segment.
func (d *Decoder) Decode(compactToken string) (*IdentityClaims, error) {
	segments := strings.Split(compactToken, ".")
	if len(segments) < 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(segments))
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var claims IdentityClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: invalid payload JSON: %v", ErrMalformedToken, err)
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrMalformedToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrMalformedToken)
	}

	return &claims, nil
}

// decodeSegment base64url-decodes a token segment, normalizing padding to a
// multiple of 4 first. Providers emit unpadded segments.
func decodeSegment(segment string) ([]byte, error) {
	if rem := len(segment) % 4; rem != 0 {
		segment += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(segment)
}
