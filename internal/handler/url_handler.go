package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Kosench/shortlink/internal/errors"
	"github.com/Kosench/shortlink/internal/model"
)

// URLService - операции сервиса, которые нужны HTTP слою
type URLService interface {
	CreateShortURL(ctx context.Context, req *model.CreateURLRequest) (*model.URLResponse, error)
	Resolve(ctx context.Context, shortCode string) (string, error)
	GetStats(ctx context.Context, shortCode string) (*model.StatsResponse, error)
	GetURL(ctx context.Context, shortCode string) (*model.URLResponse, error)
}

type URLHandler struct {
	urlService URLService
	logger     *slog.Logger
}

func NewURLHandler(urlService URLService, logger *slog.Logger) *URLHandler {
	return &URLHandler{
		urlService: urlService,
		logger:     logger,
	}
}

// RegisterRoutes подключает маршруты сервиса к роутеру
func (h *URLHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/shorten", h.CreateURL)
	router.GET("/stats/:shortCode", h.Stats)

	api := router.Group("/api")
	{
		api.POST("/urls", h.CreateURL)
		api.GET("/urls/:shortCode", h.GetURL)
	}

	router.GET("/:shortCode", h.Redirect)
}

func (h *URLHandler) CreateURL(c *gin.Context) {
	var req model.CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON format",
		})
		return
	}

	response, err := h.urlService.CreateShortURL(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Redirect отвечает 302 на исходный URL; просмотр учитывается сервисом синхронно в Redis
func (h *URLHandler) Redirect(c *gin.Context) {
	originalURL, err := h.urlService.Resolve(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Redirect(http.StatusFound, originalURL)
}

func (h *URLHandler) Stats(c *gin.Context) {
	stats, err := h.urlService.GetStats(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *URLHandler) GetURL(c *gin.Context) {
	response, err := h.urlService.GetURL(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleError обрабатывает ошибки и возвращает соответствующие HTTP коды
func (h *URLHandler) handleError(c *gin.Context, err error) {
	if validationErr := apperrors.GetValidationError(err); validationErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
		return
	}

	if errors.Is(err, apperrors.ErrURLNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "url_not_found",
			"message": "URL not found",
		})
		return
	}

	// Redis или Postgres недоступны: клиент может повторить запрос
	if apperrors.IsStoreError(err) {
		h.logger.Error("store unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "service_unavailable",
			"message": "Storage is temporarily unavailable",
		})
		return
	}

	if businessErr := apperrors.GetBusinessError(err); businessErr != nil {
		h.logger.Error("request failed", "path", c.FullPath(), "code", businessErr.Code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "business_error",
			"message": businessErr.Message,
			"code":    businessErr.Code,
		})
		return
	}

	h.logger.Error("unexpected error", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}
