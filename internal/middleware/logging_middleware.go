// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unilog-service/internal/utils"
)

// LoggingMiddleware logs every request except the health checks and WebSocket
// upgrades
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if quietPath(path) {
			c.Next()
			return
		}

		startTime := time.Now()
		c.Next()

		fields := []zap.Field{zap.String("request_id", c.GetString(RequestIDKey))}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(startTime),
			fields...,
		)
	}
}

func quietPath(path string) bool {
	switch path {
	case "/health", "/ready", "/live":
		return true
	}
	return strings.HasPrefix(path, "/ws/")
}
