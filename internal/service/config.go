package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadbridge/bridge/internal/cache"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/store"
)

// ConfigService is the read path for user configuration. Every lookup goes
// through the cache; the store is only hit on a miss. It also satisfies
// crm.SettingsProvider so adapters resolve credentials through the same
// cached path.
type ConfigService interface {
	RulesFor(ctx context.Context, userID int64) ([]model.SyncRule, error)
	SettingsFor(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error)
	MetadataFor(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error)
	InvalidateUser(ctx context.Context, userID int64) error
	ClearAll(ctx context.Context) error
}

type configService struct {
	rules    store.RuleStore
	settings store.SettingsStore
	metadata store.MetadataStore
	cache    *cache.Cache
}

func NewConfigService(rules store.RuleStore, settings store.SettingsStore, metadata store.MetadataStore, c *cache.Cache) ConfigService {
	return &configService{
		rules:    rules,
		settings: settings,
		metadata: metadata,
		cache:    c,
	}
}

func (s *configService) RulesFor(ctx context.Context, userID int64) ([]model.SyncRule, error) {
	var rules []model.SyncRule
	err := s.cache.Get(ctx, cache.KindRules, userID, "", &rules, func(ctx context.Context) error {
		loaded, err := s.rules.ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		rules = loaded
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to load sync rules",
			"error", err,
			"user_id", userID,
		)
		return nil, err
	}
	return rules, nil
}

func (s *configService) SettingsFor(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error) {
	var settings model.Settings
	err := s.cache.Get(ctx, cache.KindSettings, userID, string(platform), &settings, func(ctx context.Context) error {
		loaded, err := s.settings.GetByUserAndPlatform(ctx, userID, platform)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		settings = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *configService) MetadataFor(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error) {
	var meta model.Metadata
	subkey := fmt.Sprintf("%s:%s", platform, kind)
	err := s.cache.Get(ctx, cache.KindMetadata, userID, subkey, &meta, func(ctx context.Context) error {
		loaded, err := s.metadata.Get(ctx, userID, platform, kind)
		if err != nil {
			return fmt.Errorf("loading metadata: %w", err)
		}
		meta = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *configService) InvalidateUser(ctx context.Context, userID int64) error {
	return s.cache.Invalidate(ctx, userID)
}

func (s *configService) ClearAll(ctx context.Context) error {
	return s.cache.ClearAll(ctx)
}
