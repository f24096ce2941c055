package event

import (
	"encoding/json"
	"fmt"

	"github.com/leadbridge/bridge/internal/model"
)

// Event is the tagged union over inbound webhook payloads. The two sources
// ship very different shapes (AmoCRM posts flat key-indexed form fields,
// LPTracker posts nested JSON), so each gets its own concrete type and the
// pipeline only talks to these accessors.
//
// An event is immutable once enqueued; accessors never mutate the payload.
type Event interface {
	// Source reports which platform sent the event.
	Source() model.Source

	// Type is the normalized event type tag used by event_type conditions.
	Type() string

	// EntityID extracts the stable external deal/lead identifier from a
	// source-specific set of payload keys, first populated key wins.
	EntityID() (string, bool)

	// OwnerKey is the source identifier used to resolve the owning user:
	// the account subdomain for AmoCRM, the project id for LPTracker.
	OwnerKey() (string, bool)

	// UpdatedFields lists the fields the upstream change touched.
	// nil means the payload carries no such list and the event must be
	// assumed relevant.
	UpdatedFields() []string

	// ActionTimestamp is the upstream change timestamp when present.
	ActionTimestamp() (string, bool)

	// StatusID and PipelineID read stage identifiers straight from the raw
	// payload. The evaluator prefers the enriched entity and falls back here.
	StatusID() (string, bool)
	PipelineID() (string, bool)

	// FieldValue looks a custom field up in the raw payload representation.
	FieldValue(key string) (string, bool)

	// Raw exposes the payload for logging and dispatch passthrough.
	Raw() map[string]any
}

// Decode parses a queued payload back into its source-specific event type.
// AmoCRM payloads are the form fields flattened to a string map at receipt;
// LPTracker payloads are the original JSON object.
func Decode(source model.Source, payload []byte) (Event, error) {
	switch source {
	case model.SourceAmoCRM:
		var fields map[string]string
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decoding amocrm payload: %w", err)
		}
		return &AmoEvent{fields: fields}, nil
	case model.SourceLPTracker:
		var data map[string]any
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("decoding lptracker payload: %w", err)
		}
		return &LPTrackerEvent{data: data}, nil
	default:
		return nil, fmt.Errorf("unknown event source %q", source)
	}
}
