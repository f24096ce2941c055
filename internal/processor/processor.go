package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/dedup"
	"github.com/leadbridge/bridge/internal/event"
	"github.com/leadbridge/bridge/internal/metrics"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/queue"
	"github.com/leadbridge/bridge/internal/rule"
)

// Terminal skip conditions: retrying cannot produce an owner or entity id
// that the payload does not carry, so these end the job successfully.
var (
	ErrNoOwner    = errors.New("no owning user resolved for event")
	ErrNoEntityID = errors.New("no entity id in payload")
)

// RuleSource supplies a user's sync rules, cached.
type RuleSource interface {
	RulesFor(ctx context.Context, userID int64) ([]model.SyncRule, error)
}

// OwnerDirectory maps a payload-embedded source identifier back to the
// owning user by scanning active platform settings.
type OwnerDirectory interface {
	ListByPlatform(ctx context.Context, platform model.Source) ([]model.Settings, error)
}

// Enricher hydrates a thin event reference into a full evaluation context.
type Enricher interface {
	Enrich(ctx context.Context, userID int64, evt event.Event) (*event.Context, error)
}

// Dispatcher executes a matched rule's actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, rule model.SyncRule, evctx *event.Context) error
}

// DedupStore gates re-execution of already-processed events.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// ExecutionCounter bumps a rule's execution count after a dispatch.
type ExecutionCounter interface {
	IncrementExecution(ctx context.Context, ruleID int64) error
}

// Processor owns the end-to-end webhook flow: Submit enqueues on receipt,
// Process runs the full pipeline when a worker dequeues the job.
type Processor struct {
	producer   queue.Producer
	rules      RuleSource
	owners     OwnerDirectory
	enricher   Enricher
	dedup      DedupStore
	dispatcher Dispatcher
	counter    ExecutionCounter
}

func New(
	producer queue.Producer,
	rules RuleSource,
	owners OwnerDirectory,
	enricher Enricher,
	dedupStore DedupStore,
	dispatcher Dispatcher,
	counter ExecutionCounter,
) *Processor {
	return &Processor{
		producer:   producer,
		rules:      rules,
		owners:     owners,
		enricher:   enricher,
		dedup:      dedupStore,
		dispatcher: dispatcher,
		counter:    counter,
	}
}

// Submit is the fast path: validate nothing, enqueue, return the job id.
// Enqueue failures propagate so the HTTP layer can answer 5xx.
func (p *Processor) Submit(ctx context.Context, source model.Source, payload []byte) (string, error) {
	eventID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   logger.Ptr(eventID),
		Source:    logger.Ptr(string(source)),
		Component: "bridge.processor",
	})

	var traceID *string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = logger.Ptr(sc.TraceID().String())
	}

	jobID, err := p.producer.Enqueue(ctx, queue.EventMessage{
		Source:     source,
		EventID:    eventID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		TraceID:    traceID,
		Attempt:    1,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue webhook event",
			"error", err,
			"payload", logger.Truncate(string(payload), 500),
		)
		return "", fmt.Errorf("submitting webhook: %w", err)
	}

	metrics.JobsEnqueued.WithLabelValues(string(source)).Inc()
	return jobID, nil
}

// Process is the durable-retry unit a queue worker invokes. A nil return
// acknowledges the job; an error hands it back for retry. Conditions that a
// retry cannot fix (malformed payload, no owner, no entity id) are logged
// and acknowledged.
func (p *Processor) Process(ctx context.Context, source model.Source, payload []byte) error {
	start := time.Now()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Source:    logger.Ptr(string(source)),
		Component: "bridge.processor",
	})

	evt, err := event.Decode(source, payload)
	if err != nil {
		slog.ErrorContext(ctx, "dropping undecodable webhook payload",
			"error", err,
			"payload", logger.Truncate(string(payload), 500),
		)
		metrics.RecordProcessed(string(source), "malformed", time.Since(start))
		return nil
	}

	userID, err := p.resolveOwner(ctx, evt)
	if errors.Is(err, ErrNoOwner) {
		slog.WarnContext(ctx, "dropping event with no resolvable owner", "error", err)
		metrics.RecordProcessed(string(source), "no_owner", time.Since(start))
		return nil
	}
	if err != nil {
		metrics.RecordProcessed(string(source), "owner_lookup_failed", time.Since(start))
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(userID)})

	entityID, ok := evt.EntityID()
	if !ok {
		slog.WarnContext(ctx, "dropping event with no entity id", "event_type", evt.Type())
		metrics.RecordProcessed(string(source), "no_entity_id", time.Since(start))
		return nil
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{LeadID: logger.Ptr(entityID)})

	evctx, err := p.enricher.Enrich(ctx, userID, evt)
	if err != nil {
		slog.ErrorContext(ctx, "event enrichment failed", "error", err)
		metrics.RecordProcessed(string(source), "enrich_failed", time.Since(start))
		return fmt.Errorf("enriching event %s: %w", entityID, err)
	}

	rules, err := p.rules.RulesFor(ctx, userID)
	if err != nil {
		metrics.RecordProcessed(string(source), "rules_failed", time.Since(start))
		return fmt.Errorf("loading rules for user %d: %w", userID, err)
	}

	updatedFields := evt.UpdatedFields()
	executed := 0
	for _, r := range rules {
		if !r.IsActive || r.WebhookSource != source {
			continue
		}
		if !rule.Relevant(r, updatedFields) {
			continue
		}
		if p.runRule(ctx, userID, entityID, r, evt, evctx) {
			executed++
		}
	}

	slog.InfoContext(ctx, "webhook event processed",
		"event_type", evt.Type(),
		"rules_executed", executed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	metrics.RecordProcessed(string(source), "ok", time.Since(start))
	return nil
}

// runRule evaluates and executes one rule in isolation. Failures are logged
// and never propagate; the return reports whether actions were dispatched.
func (p *Processor) runRule(ctx context.Context, userID int64, entityID string, r model.SyncRule, evt event.Event, evctx *event.Context) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{RuleID: logger.Ptr(r.ID)})

	if !rule.Evaluate(r.Conditions, evctx) {
		return false
	}
	metrics.RecordMatch()

	ts, ok := evt.ActionTimestamp()
	if !ok {
		ts = dedup.DefaultTimestampToken
	}
	key := dedup.Key(userID, entityID, r.ID, ts)

	seen, err := p.dedup.Seen(ctx, key)
	if err != nil {
		// Lookup failure degrades to "not yet processed": one duplicate
		// sync beats a lost one.
		slog.WarnContext(ctx, "dedup lookup failed, proceeding", "error", err, "key", key)
		seen = false
	}
	if seen {
		slog.InfoContext(ctx, "skipping already-processed event", "key", key)
		metrics.RecordSuppressed()
		return false
	}

	if err := p.dispatcher.Dispatch(ctx, userID, r, evctx); err != nil {
		slog.ErrorContext(ctx, "rule dispatch completed with failures", "error", err)
	}

	if err := p.dedup.Mark(ctx, key); err != nil {
		slog.WarnContext(ctx, "dedup mark failed", "error", err, "key", key)
	}
	if err := p.counter.IncrementExecution(ctx, r.ID); err != nil {
		slog.WarnContext(ctx, "execution counter increment failed", "error", err)
	}
	return true
}

// resolveOwner scans active settings for the event's platform and matches
// the payload's source identifier (subdomain or project id) to a user.
func (p *Processor) resolveOwner(ctx context.Context, evt event.Event) (int64, error) {
	ownerKey, ok := evt.OwnerKey()
	if !ok || ownerKey == "" {
		return 0, ErrNoOwner
	}

	settings, err := p.owners.ListByPlatform(ctx, evt.Source())
	if err != nil {
		return 0, fmt.Errorf("listing %s settings: %w", evt.Source(), err)
	}

	for _, s := range settings {
		switch evt.Source() {
		case model.SourceAmoCRM:
			if s.Subdomain == ownerKey {
				return s.UserID, nil
			}
		case model.SourceLPTracker:
			if s.ProjectID == ownerKey {
				return s.UserID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrNoOwner, evt.Source(), ownerKey)
}
