package dto

import (
	"github.com/leadbridge/bridge/internal/model"
)

type UpsertSettingsRequest struct {
	UserID      int64  `json:"user_id,string" binding:"required"`
	Platform    string `json:"platform" binding:"required,oneof=amocrm lptracker"`
	IsActive    *bool  `json:"is_active,omitempty"`
	Subdomain   string `json:"subdomain,omitempty" binding:"omitempty,max=255"`
	ProjectID   string `json:"project_id,omitempty" binding:"omitempty,max=255"`
	AccessToken string `json:"access_token" binding:"required"`
}

func (r *UpsertSettingsRequest) ToModel() *model.Settings {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &model.Settings{
		UserID:      r.UserID,
		Platform:    model.Source(r.Platform),
		IsActive:    active,
		Subdomain:   r.Subdomain,
		ProjectID:   r.ProjectID,
		AccessToken: r.AccessToken,
	}
}
