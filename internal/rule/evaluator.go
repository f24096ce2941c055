package rule

import (
	"strings"

	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/model"
)

// Evaluate reports whether a rule's condition tree matches the event context.
// Pure function, no side effects.
//
// Fail-closed: an empty or malformed tree never matches, an unknown condition
// type evaluates to false, and a panic inside evaluation yields false rather
// than escaping into the caller.
func Evaluate(conditions model.RuleConditions, evctx *event.Context) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()

	if evctx == nil || evctx.Event == nil || len(conditions.Rules) == 0 {
		return false
	}

	operator := conditions.Operator
	if operator == "" {
		operator = model.OperatorAnd
	}

	switch operator {
	case model.OperatorAnd:
		for _, c := range conditions.Rules {
			if !evaluateCondition(c, evctx) {
				return false
			}
		}
		return true
	case model.OperatorOr:
		for _, c := range conditions.Rules {
			if evaluateCondition(c, evctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evaluateCondition(c model.Condition, evctx *event.Context) bool {
	switch c.Type {
	case model.ConditionEventType:
		return evctx.Event.Type() == c.Value
	case model.ConditionPipeline:
		id := evctx.PipelineID()
		return id != "" && id == c.Value
	case model.ConditionStatus:
		id := evctx.StatusID()
		return id != "" && id == c.Value
	case model.ConditionFieldEquals:
		v, ok := evctx.FieldValue(c.Field)
		return ok && v == c.Value
	case model.ConditionFieldContains:
		v, ok := evctx.FieldValue(c.Field)
		return ok && strings.Contains(v, c.Value)
	case model.ConditionFieldNotEmpty:
		v, ok := evctx.FieldValue(c.Field)
		return ok && v != ""
	default:
		return false
	}
}
