package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (user_id, rule_id, lead_id, etc.) is automatically included in all log statements.
type LogFields struct {
	UserID    *int64  // Owning user resolved from the webhook payload
	RuleID    *int64  // Sync rule currently being evaluated
	EventID   *int64  // Internally assigned inbound event ID
	LeadID    *string // External lead/deal identifier
	Source    *string // Webhook source ("amocrm" or "lptracker")
	MessageID *string // Redis stream message ID
	Component string  // Component name (OTel semantic convention style, e.g. "bridge.processor")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, incoming LogFields) LogFields {
	result := existing

	if incoming.UserID != nil {
		result.UserID = incoming.UserID
	}
	if incoming.RuleID != nil {
		result.RuleID = incoming.RuleID
	}
	if incoming.EventID != nil {
		result.EventID = incoming.EventID
	}
	if incoming.LeadID != nil {
		result.LeadID = incoming.LeadID
	}
	if incoming.Source != nil {
		result.Source = incoming.Source
	}
	if incoming.MessageID != nil {
		result.MessageID = incoming.MessageID
	}
	if incoming.Component != "" {
		result.Component = incoming.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like raw webhook payloads.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
