package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/handler"
	"github.com/leadbridge/bridge/internal/http/handler/webhook"
	"github.com/leadbridge/bridge/internal/http/middleware"
	"github.com/leadbridge/bridge/internal/metrics"
	"github.com/leadbridge/bridge/internal/service"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, services *service.Services, submitter webhook.Submitter, statsSources []handler.StatsSource, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	webhookHandler := webhook.NewHandler(submitter)
	WebhookRouter(router.Group("/webhooks"), webhookHandler)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAdminKey(cfg.AdminAPIKey))
	{
		adminHandler := handler.NewAdminHandler(services.Config(), statsSources)
		AdminRouter(v1, adminHandler)

		ruleHandler := handler.NewRuleHandler(services.Rules())
		RuleRouter(v1.Group("/rules"), ruleHandler)

		settingsHandler := handler.NewSettingsHandler(services.Settings())
		SettingsRouter(v1.Group("/settings"), settingsHandler)

		metadataHandler := handler.NewMetadataHandler(services.Config(), services.Metadata())
		MetadataRouter(v1.Group("/metadata"), metadataHandler)
	}
}
