package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fedivid/recoserver/internal/logger"
)

// RequestIDMiddleware adds a unique request ID to each request.
// If X-Request-ID header is present it is reused; otherwise a new UUID
// is generated.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		method := c.Request.Method
		path := c.Request.URL.Path

		logger.Log.Debug("request started",
			logger.WithRequestID(requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		)

		c.Next()

		logger.Log.Debug("request completed",
			logger.WithRequestID(requestID),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", method),
			zap.String("path", path),
		)
	}
}
