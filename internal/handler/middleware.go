package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kosench/shortlink/internal/cache"
)

// RateLimitMiddleware - fixed window rate limiter на счетчиках Redis.
// При ошибке Redis запрос пропускается.
func RateLimitMiddleware(limiter cache.RateLimiter, keys *cache.KeyBuilder, maxRequests int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keys.RateLimit(c.ClientIP())

		count, err := limiter.IncrementRateLimit(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limit check failed", "error", err)
			c.Next()
			return
		}

		if count > int64(maxRequests) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger пишет одну строку лога на запрос
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}
