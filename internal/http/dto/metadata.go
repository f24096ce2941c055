package dto

import (
	"encoding/json"

	"github.com/leadbridge/bridge/internal/model"
)

type UpsertMetadataRequest struct {
	UserID   int64           `json:"user_id,string" binding:"required"`
	Platform string          `json:"platform" binding:"required,oneof=amocrm lptracker"`
	Kind     string          `json:"kind" binding:"required,max=64"`
	Value    json.RawMessage `json:"value" binding:"required"`
}

func (r *UpsertMetadataRequest) ToModel() *model.Metadata {
	return &model.Metadata{
		UserID:   r.UserID,
		Platform: model.Source(r.Platform),
		Kind:     r.Kind,
		Value:    r.Value,
	}
}
