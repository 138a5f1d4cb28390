// Package authsvc orchestrates login: token verification, role
// resolution, user provisioning, capability derivation, and
// organization assignment, exposed over an HTTP API.
package authsvc
