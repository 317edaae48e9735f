package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grupoeconomico/exporter"
	"grupoeconomico/internal/container"
	apperrors "grupoeconomico/server/errors"
)

// SystemHandler служебные эндпоинты: здоровье, состояние, кэш, шаблон
type SystemHandler struct {
	container *container.Container
	logger    *zap.Logger
	startedAt time.Time
}

// NewSystemHandler создает обработчик
func NewSystemHandler(c *container.Container, logger *zap.Logger) *SystemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemHandler{
		container: c,
		logger:    logger.Named("system"),
		startedAt: time.Now(),
	}
}

// Health GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Status GET /api/v1/status
func (h *SystemHandler) Status(c *gin.Context) {
	SendJSONResponse(c, http.StatusOK, h.container.Status())
}

// ClearCache DELETE /api/v1/cache
func (h *SystemHandler) ClearCache(c *gin.Context) {
	cleared := h.container.Cache.Len()
	h.container.Cache.Clear()
	h.logger.Info("Identity cache cleared", zap.Int("entries", cleared))
	SendJSONSuccess(c, "cache cleared", gin.H{"cleared": cleared})
}

// Template GET /api/v1/template
func (h *SystemHandler) Template(c *gin.Context) {
	var buf bytes.Buffer
	if err := exporter.WriteTemplate(&buf); err != nil {
		SendJSONError(c, h.logger, apperrors.NewInternalError("failed to build template", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exporter.TemplateFileName))
	c.Data(http.StatusOK, exporter.FormatExcel.ContentType(), buf.Bytes())
}

// NotFound отвечает на неизвестные маршруты в стандартной обертке
func (h *SystemHandler) NotFound(c *gin.Context) {
	SendJSONError(c, nil, apperrors.NewNotFoundError("route not found", nil).
		WithContext(c.Request.Method+" "+c.Request.URL.Path))
}
