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

type SettingsHandler struct {
	settingsService service.SettingsService
}

func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) Upsert(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UpsertSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.settingsService.Upsert(ctx, req.ToModel())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (h *SettingsHandler) Delete(c *gin.Context) {
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

	if err := h.settingsService.Delete(c.Request.Context(), userID, platform); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "settings not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
