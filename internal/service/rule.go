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

// RuleService is the admin-facing mutation path for sync rules. Every
// write invalidates the owning user's cached configuration so the pipeline
// picks the change up on its next lookup.
type RuleService interface {
	Get(ctx context.Context, ruleID int64) (*model.SyncRule, error)
	List(ctx context.Context, userID int64) ([]model.SyncRule, error)
	Create(ctx context.Context, rule *model.SyncRule) (*model.SyncRule, error)
	Update(ctx context.Context, rule *model.SyncRule) error
	SetActive(ctx context.Context, ruleID int64, active bool) error
	Delete(ctx context.Context, ruleID int64) error
}

type ruleService struct {
	rules store.RuleStore
	cache *cache.Cache
}

func NewRuleService(rules store.RuleStore, c *cache.Cache) RuleService {
	return &ruleService{
		rules: rules,
		cache: c,
	}
}

func (s *ruleService) Get(ctx context.Context, ruleID int64) (*model.SyncRule, error) {
	return s.rules.GetByID(ctx, ruleID)
}

func (s *ruleService) List(ctx context.Context, userID int64) ([]model.SyncRule, error) {
	return s.rules.ListByUser(ctx, userID)
}

func (s *ruleService) Create(ctx context.Context, rule *model.SyncRule) (*model.SyncRule, error) {
	if rule.ID == 0 {
		rule.ID = id.New()
	}
	if !rule.WebhookSource.Valid() {
		return nil, fmt.Errorf("invalid webhook source %q", rule.WebhookSource)
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		slog.ErrorContext(ctx, "failed to create sync rule",
			"error", err,
			"user_id", rule.UserID,
		)
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	s.invalidate(ctx, rule.UserID)
	slog.InfoContext(ctx, "sync rule created", "rule_id", rule.ID, "user_id", rule.UserID)
	return rule, nil
}

func (s *ruleService) Update(ctx context.Context, rule *model.SyncRule) error {
	if err := s.rules.Update(ctx, rule); err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	s.invalidate(ctx, rule.UserID)
	return nil
}

func (s *ruleService) SetActive(ctx context.Context, ruleID int64, active bool) error {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := s.rules.SetActive(ctx, ruleID, active); err != nil {
		return fmt.Errorf("toggling rule: %w", err)
	}
	s.invalidate(ctx, rule.UserID)
	return nil
}

func (s *ruleService) Delete(ctx context.Context, ruleID int64) error {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	s.invalidate(ctx, rule.UserID)
	return nil
}

// invalidate is best-effort: a stale cache entry expires on its own TTL,
// so a failed invalidation is logged, not propagated.
func (s *ruleService) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed after rule mutation",
			"error", err,
			"user_id", userID,
		)
	}
}
