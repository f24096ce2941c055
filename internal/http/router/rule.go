package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler"
)

func RuleRouter(router *gin.RouterGroup, handler *handler.RuleHandler) {
	router.POST("", handler.Create)
	router.GET("", handler.List)
	router.GET("/:id", handler.GetByID)
	router.PUT("/:id", handler.Update)
	router.PATCH("/:id/active", handler.SetActive)
	router.DELETE("/:id", handler.Delete)
}
