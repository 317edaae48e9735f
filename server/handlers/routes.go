package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grupoeconomico/internal/container"
)

// RegisterRoutes регистрирует все маршруты API
func RegisterRoutes(router *gin.Engine, c *container.Container, logger *zap.Logger) {
	batches := NewBatchHandler(c, logger)
	system := NewSystemHandler(c, logger)

	router.GET("/health", system.Health)
	router.GET("/metrics", gin.WrapH(c.Metrics.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/batches", batches.ProcessBatch)
		api.GET("/template", system.Template)
		api.GET("/status", system.Status)
		api.DELETE("/cache", system.ClearCache)
	}

	router.NoRoute(system.NotFound)
}
