// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: authsvc request-id middleware
	// Used by: Logger, response headers
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's internal id
	// Set by: authsvc login handler after successful authentication
	// Used by: observability.FromContext log enrichment
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: authsvc logging middleware
	// Used by: Handlers needing request-scoped structured logging
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)
