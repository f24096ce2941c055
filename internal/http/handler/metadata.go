package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/dto"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/service"
	"github.com/leadbridge/bridge/internal/store"
)

// MetadataHandler serves platform reference data. Reads go through the
// cached configuration path; writes hit the store and invalidate the cache.
type MetadataHandler struct {
	config   service.ConfigService
	metadata service.MetadataService
}

func NewMetadataHandler(config service.ConfigService, metadata service.MetadataService) *MetadataHandler {
	return &MetadataHandler{
		config:   config,
		metadata: metadata,
	}
}

func (h *MetadataHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	platform := model.Source(c.Param("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid platform"})
		return
	}

	meta, err := h.config.MetadataFor(ctx, userID, platform, c.Param("kind"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "metadata not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load metadata",
			"error", err,
			"user_id", userID,
			"platform", platform,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metadata"})
		return
	}

	c.JSON(http.StatusOK, meta)
}

func (h *MetadataHandler) Upsert(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UpsertMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta, err := h.metadata.Upsert(ctx, req.ToModel())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save metadata"})
		return
	}

	c.JSON(http.StatusOK, meta)
}
