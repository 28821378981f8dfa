package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware returns a gin handler enforcing the per-client limit. Rejected
// requests get a 429 with standard rate limit headers.
func Middleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowClient(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Fail open: a broken limiter should not take the API down.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			if limiter.metrics != nil {
				limiter.metrics.IncrementRateLimitRejected()
			}
			retryAfter := result.RetryAfter
			if retryAfter <= 0 {
				retryAfter = time.Minute
			}
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
