package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/crm"
	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/metrics"
	"github.com/leadbridge/bridge/internal/model"
)

// Fallbacks used when the source payload carries no usable value. Real
// records from both platforms occasionally arrive nameless.
const (
	fallbackContactName = "Unknown contact"
	fallbackLeadName    = "Untitled lead"
)

// Dispatcher fans a matched rule's action list out to the CRM adapters.
// Each action is isolated: a failing sync is logged and joined into the
// returned error, but never aborts its siblings.
type Dispatcher struct {
	amocrm    crm.AmoCRM
	lptracker crm.LPTracker
}

func New(amocrm crm.AmoCRM, lptracker crm.LPTracker) *Dispatcher {
	return &Dispatcher{
		amocrm:    amocrm,
		lptracker: lptracker,
	}
}

// Dispatch executes every action of a matched rule against its target
// platform. Unknown action types are warned about and skipped. The
// returned error joins individual action failures for the caller to log;
// a non-nil error does not mean nothing was dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(userID),
		RuleID:    logger.Ptr(rule.ID),
		Component: "bridge.dispatch",
	})

	var errs []error
	for i, action := range rule.Actions {
		record := buildRecord(evctx, action)
		matchBy := action.MatchBy
		if matchBy == "" {
			matchBy = model.MatchByPhone
		}

		var err error
		switch action.Type {
		case model.ActionSyncToAmoCRM:
			err = d.amocrm.SyncLead(ctx, userID, record, matchBy)
		case model.ActionSyncToLPTracker:
			err = d.lptracker.SyncLead(ctx, userID, record, matchBy)
		default:
			slog.WarnContext(ctx, "skipping action with unknown type",
				"action_type", string(action.Type),
				"action_index", i,
			)
			continue
		}

		metrics.RecordDispatch(string(action.Type), err)
		if err != nil {
			slog.ErrorContext(ctx, "sync action failed",
				"error", err,
				"action_type", string(action.Type),
				"action_index", i,
			)
			errs = append(errs, fmt.Errorf("action %d (%s): %w", i, action.Type, err))
			continue
		}
		slog.InfoContext(ctx, "sync action dispatched",
			"action_type", string(action.Type),
			"lead_name", record.LeadName,
		)
	}

	return errors.Join(errs...)
}

// buildRecord normalizes the evaluation context into the flat shape the
// adapters consume. Contact detail prefers the first contact carrying a
// phone number, then the first contact at all.
func buildRecord(evctx *event.Context, action model.RuleAction) crm.SyncRecord {
	record := crm.SyncRecord{
		ContactName: fallbackContactName,
		LeadName:    fallbackLeadName,
	}

	if contact := pickContact(evctx.Contacts); contact != nil {
		if contact.Name != "" {
			record.ContactName = contact.Name
		}
		record.ContactPhone = contact.Phone
		record.ContactEmail = contact.Email
	}

	if evctx.Lead != nil {
		if evctx.Lead.Name != "" {
			record.LeadName = evctx.Lead.Name
		}
		record.Price = evctx.Lead.Price
		record.CustomFields = flattenFields(evctx.Lead.CustomFields)
	}

	// Targeting detail only travels when the rule actually sets it, so
	// the adapter can tell "unset" from "empty".
	if len(action.FieldMappings) > 0 {
		record.FieldMappings = action.FieldMappings
	}
	if action.PipelineID != "" {
		record.PipelineID = action.PipelineID
	}
	if action.StatusID != "" {
		record.StatusID = action.StatusID
	}

	return record
}

func pickContact(contacts []model.Contact) *model.Contact {
	for i := range contacts {
		if contacts[i].Phone != "" {
			return &contacts[i]
		}
	}
	if len(contacts) > 0 {
		return &contacts[0]
	}
	return nil
}

func flattenFields(fields []model.CustomField) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		key := f.ID
		if key == "" {
			key = f.Name
		}
		if key == "" {
			continue
		}
		out[key] = f.First()
	}
	return out
}
