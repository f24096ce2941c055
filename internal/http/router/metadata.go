package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler"
)

func MetadataRouter(router *gin.RouterGroup, handler *handler.MetadataHandler) {
	router.PUT("", handler.Upsert)
	router.GET("/:user_id/:platform/:kind", handler.Get)
}
