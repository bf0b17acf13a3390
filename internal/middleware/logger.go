package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger middleware logs HTTP requests
func Logger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start timer
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Build query string
		if raw != "" {
			path = path + "?" + raw
		}

		entry := log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"client_ip": c.ClientIP(),
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("Request failed")
			return
		}
		entry.Info("Request")
	}
}
