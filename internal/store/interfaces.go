package store

import (
	"context"
	"errors"

	"github.com/leadbridge/bridge/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RuleStore defines the contract for sync rule data access.
// The pipeline only reads rules and bumps execution counters; CRUD is for
// the admin surface.
type RuleStore interface {
	GetByID(ctx context.Context, id int64) (*model.SyncRule, error)
	ListByUser(ctx context.Context, userID int64) ([]model.SyncRule, error)
	Create(ctx context.Context, rule *model.SyncRule) error
	Update(ctx context.Context, rule *model.SyncRule) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	IncrementExecution(ctx context.Context, id int64) error
}

// SettingsStore defines the contract for platform settings data access
type SettingsStore interface {
	GetByUserAndPlatform(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error)
	ListByPlatform(ctx context.Context, platform model.Source) ([]model.Settings, error)
	Upsert(ctx context.Context, settings *model.Settings) error
	Delete(ctx context.Context, id int64) error
}

// MetadataStore defines the contract for cached platform reference data
type MetadataStore interface {
	Get(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error)
	Put(ctx context.Context, meta *model.Metadata) error
}
