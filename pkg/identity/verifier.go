package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier turns a raw compact token into identity claims. The two
// implementations mark the trust boundary in the type system: OIDCVerifier
// verifies the signature against the provider's JWKS plus issuer, audience,
// and expiry; UnverifiedDecoder only parses. The orchestrator must be handed
// an OIDCVerifier in production; UnverifiedDecoder exists for development
// mode only.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*IdentityClaims, error)
}

// OIDCVerifier verifies ID tokens against an OpenID Connect provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider from its issuer URL and builds a
// verifier bound to the given client ID.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify checks the token's signature, issuer, audience, and expiry, then
// extracts the claims. Required claims are enforced the same way the pure
// decoder enforces them.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*IdentityClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var claims IdentityClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse verified claims: %v", ErrMalformedToken, err)
	}

	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrMalformedToken)
	}

	return &claims, nil
}

// UnverifiedDecoder satisfies TokenVerifier by decoding without any
// cryptographic check. Construction is deliberately loud so a production
// wiring mistake is visible at the call site.
type UnverifiedDecoder struct {
	decoder *Decoder
}

// NewUnverifiedDecoder creates a TokenVerifier that trusts whatever the
// client sent. Only wire this when the environment is development and
// verification has been explicitly disabled.
func NewUnverifiedDecoder() *UnverifiedDecoder {
	return &UnverifiedDecoder{decoder: NewDecoder()}
}

// Verify decodes the token payload without verification.
func (u *UnverifiedDecoder) Verify(_ context.Context, rawToken string) (*IdentityClaims, error) {
	return u.decoder.Decode(rawToken)
}
