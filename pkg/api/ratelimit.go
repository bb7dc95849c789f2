package api

import (
	"net/http"
	"sync"

	echo "github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/dcm/pkg/config"
)

// rateLimiter hands out one token-bucket limiter per source IP (spec §6.9).
// Buckets are never evicted: at process lifetime scale for a single
// deployment this is bounded by the number of distinct client IPs seen,
// which is acceptable for the traffic this gateway expects.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[key] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}

// sourceIP identifies the rate-limit bucket for a request: X-Forwarded-For,
// then X-Real-IP, then "unknown" (spec §6.9).
func sourceIP(c *echo.Context) string {
	if xff := c.Request().Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := c.Request().Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return "unknown"
}

// rateLimitMiddleware rejects requests exceeding the given per-IP rate with
// 429 and a Retry-After header once the bucket is exhausted.
func rateLimitMiddleware(limiter *rateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !limiter.allow(sourceIP(c)) {
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, errorBody{
					Error:   "rate_limited",
					Message: "too many requests",
				})
			}
			return next(c)
		}
	}
}

// newTokenEndpointLimiter builds the limiter guarding POST /auth/token.
func newTokenEndpointLimiter(cfg *config.RateLimitConfig) *rateLimiter {
	return newRateLimiter(cfg.TokenEndpointRPS, cfg.TokenEndpointBurst)
}

// newWriteEndpointLimiter builds the limiter guarding mutating endpoints.
func newWriteEndpointLimiter(cfg *config.RateLimitConfig) *rateLimiter {
	return newRateLimiter(cfg.WriteRPS, cfg.WriteBurst)
}
