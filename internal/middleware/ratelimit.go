package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fwa-watersheds-go/internal/ratelimit"
)

// RateLimit middleware limits requests per IP
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !limiter.Allow(ip) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
