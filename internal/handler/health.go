package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kosench/shortlink/internal/cache"
)

// DatabaseChecker - проверки Postgres для /health и /info
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// ServiceInfo - статические сведения для /info
type ServiceInfo struct {
	Name         string
	Version      string
	SyncEnabled  bool
	SyncInterval time.Duration
	CacheTTL     time.Duration
}

type HealthHandler struct {
	db    DatabaseChecker
	cache cache.HealthChecker
	info  ServiceInfo
}

func NewHealthHandler(db DatabaseChecker, cacheChecker cache.HealthChecker, info ServiceInfo) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheChecker, info: info}
}

func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/info", h.Info)
}

// Health отвечает 503, если хотя бы одно хранилище недоступно
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := "healthy"
	services := gin.H{}

	if err := h.db.HealthCheck(ctx); err != nil {
		services["database"] = "unhealthy"
		status = "degraded"
	} else {
		services["database"] = "healthy"
	}

	if err := h.cache.HealthCheck(ctx); err != nil {
		services["cache"] = "unhealthy"
		status = "degraded"
	} else {
		services["cache"] = "healthy"
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":   status,
		"services": services,
	})
}

func (h *HealthHandler) Info(c *gin.Context) {
	version, _ := h.db.Version(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"service":          h.info.Name,
		"version":          h.info.Version,
		"database_driver":  "pgx",
		"database_version": version,
		"cache_driver":     "redis",
		"cache_ttl":        h.info.CacheTTL.String(),
		"view_sync": gin.H{
			"enabled":  h.info.SyncEnabled,
			"interval": h.info.SyncInterval.String(),
		},
	})
}
