package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/errors"
	"github.com/fedivid/recoserver/internal/metrics"
	"github.com/fedivid/recoserver/internal/ratelimit"
)

// RateLimitMiddleware enforces a sliding-window limit per client IP. The
// surface is unauthenticated, so the transport address is the only caller
// identity available before the body is parsed.
func RateLimitMiddleware(limiter *ratelimit.Limiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	m := metrics.Get()

	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()

		if !limiter.Allow(key) {
			m.RateLimitExceededTotal.WithLabelValues(c.FullPath()).Inc()
			apiErr := errors.RateLimited("")
			c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(apiErr.Status, gin.H{
				"ok":    false,
				"error": apiErr,
			})
			return
		}

		c.Next()
	}
}
