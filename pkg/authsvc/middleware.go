package authsvc

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eventostec/eventostec/pkg/contextkeys"
	"github.com/eventostec/eventostec/pkg/observability"
)

// RequestIDMiddleware assigns each request an ID, honoring one supplied
// by the ingress proxy, and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware injects the logger into the request context and
// logs each request with its duration.
func LoggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithLogger(r.Context(), logger)
			start := time.Now()

			next.ServeHTTP(w, r.WithContext(ctx))

			observability.FromContext(ctx).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Debug("request handled")
		})
	}
}
