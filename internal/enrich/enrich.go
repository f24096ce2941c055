package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/crm"
	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/model"
)

// Enricher hydrates an inbound event into the evaluation context. AmoCRM
// webhooks carry only identifiers, so the full lead and its linked contacts
// are fetched from the API before rules run. LPTracker payloads embed the
// entity and need no upstream call.
type Enricher struct {
	amocrm crm.AmoCRM
}

func New(amocrm crm.AmoCRM) *Enricher {
	return &Enricher{amocrm: amocrm}
}

// Enrich builds the evaluation context for the event. A fetch failure is
// returned as-is so the processor can classify it as retryable; partial
// contact failures degrade to a lead-only context.
func (e *Enricher) Enrich(ctx context.Context, userID int64, evt event.Event) (*event.Context, error) {
	evctx := &event.Context{Event: evt}

	switch evt.Source() {
	case model.SourceAmoCRM:
		if err := e.enrichAmoCRM(ctx, userID, evt, evctx); err != nil {
			return nil, err
		}
	case model.SourceLPTracker:
		enrichLPTracker(evt, evctx)
	}

	return evctx, nil
}

func (e *Enricher) enrichAmoCRM(ctx context.Context, userID int64, evt event.Event, evctx *event.Context) error {
	entityID, ok := evt.EntityID()
	if !ok {
		return nil
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID: logger.Ptr(userID),
		LeadID: logger.Ptr(entityID),
	})

	lead, err := e.amocrm.GetLead(ctx, userID, entityID)
	if err != nil {
		return fmt.Errorf("enriching lead %s: %w", entityID, err)
	}
	evctx.Lead = lead

	for _, contactID := range lead.ContactIDs {
		contact, err := e.amocrm.GetContact(ctx, userID, contactID)
		if err != nil {
			// A missing contact degrades the record, it does not fail
			// the event.
			slog.WarnContext(ctx, "contact fetch failed during enrichment",
				"error", err,
				"contact_id", contactID,
			)
			continue
		}
		evctx.Contacts = append(evctx.Contacts, *contact)
	}

	return nil
}

// enrichLPTracker lifts the embedded entity out of the payload.
func enrichLPTracker(evt event.Event, evctx *event.Context) {
	lp, ok := evt.(*event.LPTrackerEvent)
	if !ok {
		return
	}
	if lead, ok := lp.Lead(); ok {
		evctx.Lead = lead
	}
	if contact, ok := lp.Contact(); ok {
		evctx.Contacts = append(evctx.Contacts, *contact)
	}
}
