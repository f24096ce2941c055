package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler"
)

func SettingsRouter(router *gin.RouterGroup, handler *handler.SettingsHandler) {
	router.PUT("", handler.Upsert)
	router.DELETE("/:user_id/:platform", handler.Delete)
}
