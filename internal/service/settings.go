package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/internal/cache"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/store"
)

// SettingsService is the admin-facing mutation path for platform
// credentials. Writes invalidate the owning user's cached configuration.
type SettingsService interface {
	Upsert(ctx context.Context, settings *model.Settings) (*model.Settings, error)
	Delete(ctx context.Context, userID int64, platform model.Source) error
}

type settingsService struct {
	settings store.SettingsStore
	cache    *cache.Cache
}

func NewSettingsService(settings store.SettingsStore, c *cache.Cache) SettingsService {
	return &settingsService{
		settings: settings,
		cache:    c,
	}
}

func (s *settingsService) Upsert(ctx context.Context, settings *model.Settings) (*model.Settings, error) {
	if settings.ID == 0 {
		settings.ID = id.New()
	}
	if !settings.Platform.Valid() {
		return nil, fmt.Errorf("invalid platform %q", settings.Platform)
	}

	if err := s.settings.Upsert(ctx, settings); err != nil {
		slog.ErrorContext(ctx, "failed to upsert platform settings",
			"error", err,
			"user_id", settings.UserID,
			"platform", settings.Platform,
		)
		return nil, fmt.Errorf("upserting settings: %w", err)
	}

	s.invalidate(ctx, settings.UserID)
	slog.InfoContext(ctx, "platform settings saved",
		"user_id", settings.UserID,
		"platform", settings.Platform,
	)
	return settings, nil
}

func (s *settingsService) Delete(ctx context.Context, userID int64, platform model.Source) error {
	settings, err := s.settings.GetByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		return err
	}
	if err := s.settings.Delete(ctx, settings.ID); err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *settingsService) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed after settings mutation",
			"error", err,
			"user_id", userID,
		)
	}
}
