package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/core/db"
	"github.com/leadbridge/bridge/internal/model"
)

type ruleStore struct {
	q db.Querier
}

func newRuleStore(q db.Querier) *ruleStore {
	return &ruleStore{q: q}
}

const ruleColumns = `id, user_id, name, webhook_source, is_active, conditions, actions, execution_count, created_at, updated_at`

func (s *ruleStore) GetByID(ctx context.Context, ruleID int64) (*model.SyncRule, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM sync_rules WHERE id = $1`, ruleID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting rule: %w", err)
	}
	return rule, nil
}

func (s *ruleStore) ListByUser(ctx context.Context, userID int64) ([]model.SyncRule, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+ruleColumns+` FROM sync_rules WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []model.SyncRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (s *ruleStore) Create(ctx context.Context, rule *model.SyncRule) error {
	if rule.ID == 0 {
		rule.ID = id.New()
	}
	conditions, actions, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO sync_rules (id, user_id, name, webhook_source, is_active, conditions, actions, execution_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, now(), now())`,
		rule.ID, rule.UserID, rule.Name, rule.WebhookSource, rule.IsActive, conditions, actions)
	if err != nil {
		return fmt.Errorf("creating rule: %w", err)
	}
	return nil
}

func (s *ruleStore) Update(ctx context.Context, rule *model.SyncRule) error {
	conditions, actions, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE sync_rules
		 SET name = $2, webhook_source = $3, is_active = $4, conditions = $5, actions = $6, updated_at = now()
		 WHERE id = $1`,
		rule.ID, rule.Name, rule.WebhookSource, rule.IsActive, conditions, actions)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ruleStore) SetActive(ctx context.Context, ruleID int64, active bool) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE sync_rules SET is_active = $2, updated_at = now() WHERE id = $1`, ruleID, active)
	if err != nil {
		return fmt.Errorf("setting rule active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ruleStore) Delete(ctx context.Context, ruleID int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM sync_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ruleStore) IncrementExecution(ctx context.Context, ruleID int64) error {
	_, err := s.q.Exec(ctx,
		`UPDATE sync_rules SET execution_count = execution_count + 1, updated_at = now() WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("incrementing rule execution: %w", err)
	}
	return nil
}

func marshalRuleDocs(rule *model.SyncRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling actions: %w", err)
	}
	return conditions, actions, nil
}

func scanRule(row pgx.Row) (*model.SyncRule, error) {
	var (
		rule       model.SyncRule
		conditions []byte
		actions    []byte
	)
	if err := row.Scan(
		&rule.ID, &rule.UserID, &rule.Name, &rule.WebhookSource, &rule.IsActive,
		&conditions, &actions, &rule.ExecutionCount, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshaling conditions: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("unmarshaling actions: %w", err)
		}
	}
	return &rule, nil
}
