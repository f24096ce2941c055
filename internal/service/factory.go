package service

import (
	"github.com/leadbridge/bridge/internal/cache"
	"github.com/leadbridge/bridge/internal/store"
)

type Services struct {
	stores *store.Stores
	cache  *cache.Cache
}

func NewServices(stores *store.Stores, c *cache.Cache) *Services {
	return &Services{
		stores: stores,
		cache:  c,
	}
}

func (s *Services) Config() ConfigService {
	return NewConfigService(s.stores.Rules(), s.stores.Settings(), s.stores.Metadata(), s.cache)
}

func (s *Services) Rules() RuleService {
	return NewRuleService(s.stores.Rules(), s.cache)
}

func (s *Services) Settings() SettingsService {
	return NewSettingsService(s.stores.Settings(), s.cache)
}

func (s *Services) Metadata() MetadataService {
	return NewMetadataService(s.stores.Metadata(), s.cache)
}
