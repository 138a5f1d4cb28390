// Package identity extracts and verifies identity claims from compact ID
// tokens.
//
// Two capabilities are kept deliberately distinct:
//
//   - Decoder parses the base64url payload segment without any cryptographic
//     check. Its output is an unauthenticated claim about self-reported
//     identity, usable for display and development mode.
//   - OIDCVerifier verifies the token against the provider's published JWKS
//     (signature, issuer, audience, expiry) before extracting claims. It is
//     the only implementation the server orchestrator should be handed in
//     production.
//
// Both produce IdentityClaims; the distinction lives in which constructor
// was called, making the trust boundary explicit at wiring time.
package identity
