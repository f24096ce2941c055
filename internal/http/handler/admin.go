package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/metrics"
	"github.com/leadbridge/bridge/internal/queue"
	"github.com/leadbridge/bridge/internal/service"
)

// StatsSource exposes one stream's queue counters. Satisfied by
// queue.RedisConsumer.
type StatsSource interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Stream() string
}

// AdminHandler serves the operational endpoints: queue stats, pipeline
// throughput, and cache invalidation.
type AdminHandler struct {
	config  service.ConfigService
	sources []StatsSource
}

func NewAdminHandler(config service.ConfigService, sources []StatsSource) *AdminHandler {
	return &AdminHandler{
		config:  config,
		sources: sources,
	}
}

func (h *AdminHandler) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats := make([]queue.Stats, 0, len(h.sources))
	for _, src := range h.sources {
		s, err := src.Stats(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read queue stats",
				"error", err,
				"stream", src.Stream(),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue stats"})
			return
		}
		stats = append(stats, s)
	}

	c.JSON(http.StatusOK, gin.H{"streams": stats})
}

func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Current())
}

func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.config.InvalidateUser(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "cache invalidation failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) ClearCache(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.config.ClearAll(ctx); err != nil {
		slog.ErrorContext(ctx, "cache clear failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
