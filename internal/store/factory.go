package store

import (
	"github.com/leadbridge/bridge/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Rules() RuleStore {
	return newRuleStore(s.q)
}

func (s *Stores) Settings() SettingsStore {
	return newSettingsStore(s.q)
}

func (s *Stores) Metadata() MetadataStore {
	return newMetadataStore(s.q)
}
