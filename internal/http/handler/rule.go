package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/internal/http/dto"
	"github.com/leadbridge/bridge/internal/service"
	"github.com/leadbridge/bridge/internal/store"
)

type RuleHandler struct {
	ruleService service.RuleService
}

func NewRuleHandler(ruleService service.RuleService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService}
}

func (h *RuleHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleService.Create(ctx, req.ToModel())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToRuleResponse(rule))
}

func (h *RuleHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	rules, err := h.ruleService.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
		return
	}

	out := make([]*dto.RuleResponse, len(rules))
	for i := range rules {
		out[i] = dto.ToRuleResponse(&rules[i])
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (h *RuleHandler) GetByID(c *gin.Context) {
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.Get(c.Request.Context(), ruleID)
	if err != nil {
		h.notFoundOr500(c, err, "failed to load rule")
		return
	}

	c.JSON(http.StatusOK, dto.ToRuleResponse(rule))
}

func (h *RuleHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	var req dto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleService.Get(ctx, ruleID)
	if err != nil {
		h.notFoundOr500(c, err, "failed to load rule")
		return
	}

	rule.Name = req.Name
	rule.Conditions = req.Conditions
	rule.Actions = req.Actions

	if err := h.ruleService.Update(ctx, rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update rule"})
		return
	}

	c.JSON(http.StatusOK, dto.ToRuleResponse(rule))
}

func (h *RuleHandler) SetActive(c *gin.Context) {
	ctx := c.Request.Context()

	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	var req dto.SetRuleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ruleService.SetActive(ctx, ruleID, *req.Active); err != nil {
		h.notFoundOr500(c, err, "failed to toggle rule")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RuleHandler) Delete(c *gin.Context) {
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	if err := h.ruleService.Delete(c.Request.Context(), ruleID); err != nil {
		h.notFoundOr500(c, err, "failed to delete rule")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RuleHandler) ruleID(c *gin.Context) (int64, bool) {
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return 0, false
	}
	return ruleID, true
}

func (h *RuleHandler) notFoundOr500(c *gin.Context, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
