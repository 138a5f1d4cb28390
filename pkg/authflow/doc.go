// Package authflow implements the browser-based login flow for desktop
// clients. A temporary loopback HTTP listener receives the provider
// redirect, the authorization code is exchanged for tokens, and the
// listener is torn down before the flow returns.
package authflow
