package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"image-vault/internal/ratelimit"
	"image-vault/internal/shared/metrics"
	"image-vault/internal/shared/server/respond"
)

type RateLimitConfig struct {
	Limiter *ratelimit.Limiter
	// KeyFor picks the client key. Defaults to the client IP.
	KeyFor func(*gin.Context) string
	// Skip exempts requests such as health checks.
	Skip func(*gin.Context) bool
}

// RateLimit rejects requests from clients that have spent their budget
// with 429 and a Retry-After header.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFor == nil {
		cfg.KeyFor = func(c *gin.Context) string { return c.ClientIP() }
	}
	return func(c *gin.Context) {
		if cfg.Limiter == nil || c.Request.Method == http.MethodOptions || (cfg.Skip != nil && cfg.Skip(c)) {
			c.Next()
			return
		}

		key := strings.TrimSpace(cfg.KeyFor(c))
		if key == "" {
			key = "unknown"
		}
		d := cfg.Limiter.Check(key)
		if d.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(int(d.Remaining)))
			c.Next()
			return
		}

		metrics.IncRateLimited()
		retryAfterMs := int64(d.RetryAfter / time.Millisecond)
		if retryAfterMs <= 0 || d.RetryAfter > time.Hour {
			retryAfterMs = 1000
		}
		retryAfterSeconds := int64(math.Ceil(float64(retryAfterMs) / 1000.0))
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
		c.Header("X-RateLimit-Remaining", "0")
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many requests", gin.H{
			"retryAfterMs": retryAfterMs,
		})
	}
}
