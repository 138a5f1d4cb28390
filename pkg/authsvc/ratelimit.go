package authsvc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/eventostec/eventostec/pkg/httputil"
	"github.com/eventostec/eventostec/pkg/observability"
)

// LoginRateLimiter bounds login attempts per client IP using a fixed
// window counter in Redis. The limiter fails open: if Redis is down,
// logins proceed and the failure is logged.
type LoginRateLimiter struct {
	client *redis.Client
	logger *observability.Logger

	limit  int
	window time.Duration
}

// NewLoginRateLimiter creates a limiter allowing limit attempts per
// window per client IP.
func NewLoginRateLimiter(client *redis.Client, limit int, window time.Duration, logger *observability.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the client may attempt a login now.
func (l *LoginRateLimiter) Allow(ctx context.Context, clientIP string) bool {
	if l.client == nil || l.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:login:%s", clientIP)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.WithError(err).Warn("failed to set rate limit window")
		}
	}

	return count <= int64(l.limit)
}

// Middleware rejects over-limit requests with 429 before they reach the
// login handler.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), clientIP(r)) {
			httputil.WriteTooManyRequests(w, "too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop set by the ingress
// proxy, falling back to the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
