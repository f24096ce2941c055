package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler"
)

func AdminRouter(router *gin.RouterGroup, handler *handler.AdminHandler) {
	router.GET("/queue/stats", handler.QueueStats)
	router.GET("/metrics", handler.Metrics)
	router.POST("/cache/invalidate/:user_id", handler.InvalidateCache)
	router.POST("/cache/clear", handler.ClearCache)
}
