package model

import "time"

// ConditionOperator combines a rule's condition list into a single boolean.
type ConditionOperator string

const (
	OperatorAnd ConditionOperator = "AND"
	OperatorOr  ConditionOperator = "OR"
)

// ConditionType is the fixed vocabulary of supported condition checks.
type ConditionType string

const (
	ConditionEventType     ConditionType = "event_type"
	ConditionPipeline      ConditionType = "pipeline"
	ConditionStatus        ConditionType = "status"
	ConditionFieldEquals   ConditionType = "field_equals"
	ConditionFieldContains ConditionType = "field_contains"
	ConditionFieldNotEmpty ConditionType = "field_not_empty"
)

// ActionType names the sync direction of a rule action.
type ActionType string

const (
	ActionSyncToAmoCRM    ActionType = "sync_to_amocrm"
	ActionSyncToLPTracker ActionType = "sync_to_lptracker"
)

// MatchStrategy controls how the target CRM looks up an existing contact
// before creating a new one.
type MatchStrategy string

const (
	MatchByPhone MatchStrategy = "phone"
	MatchByEmail MatchStrategy = "email"
	MatchByName  MatchStrategy = "name"
)

// Condition is one leaf check in a rule's condition tree.
// Field is only meaningful for the field_* condition types.
type Condition struct {
	Type  ConditionType `json:"type"`
	Field string        `json:"field,omitempty"`
	Value string        `json:"value,omitempty"`
}

// RuleConditions is a single-level condition tree: an ordered list of
// conditions reduced by one top-level operator. No nesting.
type RuleConditions struct {
	Operator ConditionOperator `json:"operator,omitempty"`
	Rules    []Condition       `json:"rules"`
}

// RuleAction describes one sync side effect of a matched rule.
type RuleAction struct {
	Type          ActionType        `json:"type"`
	PipelineID    string            `json:"pipeline_id,omitempty"`
	StatusID      string            `json:"status_id,omitempty"`
	FieldMappings map[string]string `json:"field_mappings,omitempty"`
	MatchBy       MatchStrategy     `json:"match_by,omitempty"`
}

// SyncRule maps webhook events from one platform to sync actions on the other.
// Rules are owned by exactly one user and read-only from the pipeline's
// perspective except for execution counter increments.
type SyncRule struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"user_id"`
	Name           string         `json:"name"`
	WebhookSource  Source         `json:"webhook_source"`
	IsActive       bool           `json:"is_active"`
	Conditions     RuleConditions `json:"conditions"`
	Actions        []RuleAction   `json:"actions"`
	ExecutionCount int64          `json:"execution_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
