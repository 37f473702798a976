package ratelimit

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByIP counts requests per client IP
func ByIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUser counts requests per authenticated user, falling back to the IP
func ByUser(c *gin.Context) string {
	if userID := c.GetString("userID"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// Middleware creates a rate limiting middleware for Gin keyed by IP
func Middleware(limiter *RateLimiter) gin.HandlerFunc {
	return KeyedMiddleware(limiter, ByIP)
}

// KeyedMiddleware creates a rate limiting middleware with a custom key function
func KeyedMiddleware(limiter *RateLimiter, keyFunc KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			key = c.ClientIP()
		}

		d := limiter.Take(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", d.ResetAt.Format(time.RFC3339))

		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			response.TooManyRequests(c, "Rate limit exceeded. Try again later.", gin.H{
				"retry_after": strconv.Itoa(retryAfter) + "s",
				"reset_time":  d.ResetAt.Format(time.RFC3339),
				"limit":       limiter.Limit(),
				"remaining":   0,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
