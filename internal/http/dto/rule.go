package dto

import (
	"time"

	"github.com/leadbridge/bridge/internal/model"
)

type CreateRuleRequest struct {
	UserID        int64                `json:"user_id,string" binding:"required"`
	Name          string               `json:"name" binding:"required,min=1,max=255"`
	WebhookSource string               `json:"webhook_source" binding:"required,oneof=amocrm lptracker"`
	IsActive      *bool                `json:"is_active,omitempty"`
	Conditions    model.RuleConditions `json:"conditions" binding:"required"`
	Actions       []model.RuleAction   `json:"actions" binding:"required,min=1"`
}

type UpdateRuleRequest struct {
	Name       string               `json:"name" binding:"required,min=1,max=255"`
	Conditions model.RuleConditions `json:"conditions" binding:"required"`
	Actions    []model.RuleAction   `json:"actions" binding:"required,min=1"`
}

type SetRuleActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type RuleResponse struct {
	ID             int64                `json:"id,string"`
	UserID         int64                `json:"user_id,string"`
	Name           string               `json:"name"`
	WebhookSource  string               `json:"webhook_source"`
	IsActive       bool                 `json:"is_active"`
	Conditions     model.RuleConditions `json:"conditions"`
	Actions        []model.RuleAction   `json:"actions"`
	ExecutionCount int64                `json:"execution_count"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func ToRuleResponse(r *model.SyncRule) *RuleResponse {
	return &RuleResponse{
		ID:             r.ID,
		UserID:         r.UserID,
		Name:           r.Name,
		WebhookSource:  string(r.WebhookSource),
		IsActive:       r.IsActive,
		Conditions:     r.Conditions,
		Actions:        r.Actions,
		ExecutionCount: r.ExecutionCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *CreateRuleRequest) ToModel() *model.SyncRule {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &model.SyncRule{
		UserID:        r.UserID,
		Name:          r.Name,
		WebhookSource: model.Source(r.WebhookSource),
		IsActive:      active,
		Conditions:    r.Conditions,
		Actions:       r.Actions,
	}
}
