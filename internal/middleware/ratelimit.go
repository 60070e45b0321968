package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blogsphere/blogsphere/internal/ratelimit"
	"github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// RateLimit throttles requests per (client IP, route) inside a sliding window.
// Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := "http:" + c.ClientIP() + "|" + path

		limited, err := limiter.IsLimited(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		if limited {
			c.Header("Retry-After", strconv.Itoa(int(window.Round(time.Second).Seconds())))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
