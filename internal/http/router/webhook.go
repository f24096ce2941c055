package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, handler *webhook.Handler) {
	router.POST("/amocrm", handler.HandleAmoCRM)
	router.POST("/lptracker", handler.HandleLPTracker)
}
