// Package ratelimit provides rate limiting functionality for authentication endpoints
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"encore.app/pkg/httpx"
)

// RateLimitMiddleware wraps a raw HTTP handler with a windowed limit. The
// standard X-RateLimit-* headers are set on every response; a request over
// the limit is answered 429 with Retry-After and never reaches the handler.
func RateLimitMiddleware(rateLimiter *RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				// No key means no limit; the handler still runs.
				next.ServeHTTP(w, r)
				return
			}

			allowed := rateLimiter.IsAllowed(key)
			remaining := rateLimiter.GetRemainingAttempts(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimiter.config.MaxAttempts))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retryAfter := int(rateLimiter.config.Window.Seconds())
				if rateLimiter.config.BlockTime > 0 {
					retryAfter = int(rateLimiter.config.BlockTime.Seconds())
				}

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().UTC().Add(time.Duration(retryAfter)*time.Second).Unix(), 10))

				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			resetTime := time.Now().UTC().Add(rateLimiter.config.Window)
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKeyFunc builds per-IP rate limit keys for one action
func IPBasedKeyFunc(action string) func(*http.Request) string {
	return func(r *http.Request) string {
		return GenerateIPKey(action, httpx.GetClientIP(r))
	}
}
