package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadbridge/bridge/internal/cache"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/store"
)

// MetadataService is the admin-facing write path for platform reference
// data (pipelines, statuses, custom field definitions). Writes invalidate
// the owning user's cached configuration so the next read refetches.
type MetadataService interface {
	Upsert(ctx context.Context, meta *model.Metadata) (*model.Metadata, error)
}

type metadataService struct {
	metadata store.MetadataStore
	cache    *cache.Cache
}

func NewMetadataService(metadata store.MetadataStore, c *cache.Cache) MetadataService {
	return &metadataService{
		metadata: metadata,
		cache:    c,
	}
}

func (s *metadataService) Upsert(ctx context.Context, meta *model.Metadata) (*model.Metadata, error) {
	if !meta.Platform.Valid() {
		return nil, fmt.Errorf("invalid platform %q", meta.Platform)
	}
	if meta.Kind == "" {
		return nil, fmt.Errorf("metadata kind is required")
	}

	if err := s.metadata.Put(ctx, meta); err != nil {
		slog.ErrorContext(ctx, "failed to store platform metadata",
			"error", err,
			"user_id", meta.UserID,
			"platform", meta.Platform,
			"kind", meta.Kind,
		)
		return nil, fmt.Errorf("storing metadata: %w", err)
	}

	if err := s.cache.Invalidate(ctx, meta.UserID); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed after metadata write",
			"error", err,
			"user_id", meta.UserID,
		)
	}

	slog.InfoContext(ctx, "platform metadata saved",
		"user_id", meta.UserID,
		"platform", meta.Platform,
		"kind", meta.Kind,
	)
	return meta, nil
}
