package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedivid/recoserver/internal/cache"
	"github.com/fedivid/recoserver/internal/logger"
)

// ResponseCacheMiddleware caches successful recommendation responses in
// Redis with a short TTL. Only 2xx responses are stored. Adds an X-Cache
// HIT/MISS header for debugging. A nil client disables the middleware.
//
// Cache key: response:{path}:{query}:{body sha256}, so two requests share
// an entry only when the full request (user, profile, limit) matches.
// Requests carrying refresh or debug flags bypass the cache entirely: a
// refresh must reach the pipeline, and a cached plain response must never
// shadow provenance output.
func ResponseCacheMiddleware(redisClient *cache.RedisClient, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || c.Query("debug") != "" {
			c.Next()
			return
		}

		reqBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))

		var flags struct {
			Refresh bool `json:"refresh"`
			Debug   bool `json:"debug"`
		}
		if json.Unmarshal(reqBody, &flags) == nil && (flags.Refresh || flags.Debug) {
			c.Next()
			return
		}

		cacheKey := fmt.Sprintf("response:%s:%s:%x",
			c.Request.URL.Path, c.Request.URL.RawQuery, sha256.Sum256(reqBody))
		ctx := c.Request.Context()

		if cached, err := redisClient.Get(ctx, cacheKey); err == nil {
			c.Header("X-Cache", "HIT")
			c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		writer := &cachedResponseWriter{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))

		c.Next()

		if writer.statusCode >= 200 && writer.statusCode < 300 && writer.body.Len() > 0 {
			if err := redisClient.SetEx(ctx, cacheKey, writer.body.String(), ttl); err != nil {
				logger.Log.Debug("failed to write response cache",
					zap.String("key", cacheKey),
					zap.Error(err),
				)
			}
		}
	}
}

// cachedResponseWriter intercepts response writes to capture the body
type cachedResponseWriter struct {
	gin.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (w *cachedResponseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *cachedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
