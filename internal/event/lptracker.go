package event

import (
	"fmt"
	"strconv"

	"github.com/leadbridge/bridge/internal/model"
)

// LPTrackerEvent wraps an LPTracker webhook payload: a nested JSON object
// with the full lead embedded, so no enrichment round-trip is needed.
type LPTrackerEvent struct {
	data map[string]any
}

func NewLPTrackerEvent(data map[string]any) *LPTrackerEvent {
	return &LPTrackerEvent{data: data}
}

// lpEntityIDPaths is the fixed priority order for the lead identifier.
var lpEntityIDPaths = [][]string{
	{"lead", "id"},
	{"lead_id"},
	{"id"},
}

func (e *LPTrackerEvent) Source() model.Source {
	return model.SourceLPTracker
}

func (e *LPTrackerEvent) Type() string {
	if v, ok := stringAt(e.data, "action"); ok {
		return v
	}
	return "unknown"
}

func (e *LPTrackerEvent) EntityID() (string, bool) {
	for _, path := range lpEntityIDPaths {
		if v, ok := stringAt(e.data, path...); ok {
			return v, true
		}
	}
	return "", false
}

func (e *LPTrackerEvent) OwnerKey() (string, bool) {
	return stringAt(e.data, "project_id")
}

func (e *LPTrackerEvent) UpdatedFields() []string {
	raw, ok := e.data["action_update_fields"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			fields = append(fields, s)
		}
	}
	return fields
}

func (e *LPTrackerEvent) ActionTimestamp() (string, bool) {
	return stringAt(e.data, "action_time")
}

func (e *LPTrackerEvent) StatusID() (string, bool) {
	if v, ok := stringAt(e.data, "lead", "stage_id"); ok {
		return v, true
	}
	return stringAt(e.data, "stage_id")
}

func (e *LPTrackerEvent) PipelineID() (string, bool) {
	if v, ok := stringAt(e.data, "lead", "funnel_id"); ok {
		return v, true
	}
	return stringAt(e.data, "funnel_id")
}

// FieldValue scans the keyed list under lead.custom:
// [{"id": 1, "name": "...", "value": "..."}].
func (e *LPTrackerEvent) FieldValue(key string) (string, bool) {
	custom, ok := listAt(e.data, "lead", "custom")
	if !ok {
		return "", false
	}
	for _, item := range custom {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := stringAt(entry, "id")
		name, _ := stringAt(entry, "name")
		if id != key && name != key {
			continue
		}
		value, _ := stringAt(entry, "value")
		return value, true
	}
	return "", false
}

func (e *LPTrackerEvent) Raw() map[string]any {
	return e.data
}

// Lead builds the entity view from the embedded payload, the LPTracker
// equivalent of AmoCRM enrichment.
func (e *LPTrackerEvent) Lead() (*model.Lead, bool) {
	raw, ok := e.data["lead"].(map[string]any)
	if !ok {
		return nil, false
	}

	lead := &model.Lead{}
	lead.ID, _ = stringAt(raw, "id")
	lead.Name, _ = stringAt(raw, "name")
	lead.Price, _ = stringAt(raw, "payment_price")
	lead.StatusID, _ = stringAt(raw, "stage_id")
	lead.PipelineID, _ = stringAt(raw, "funnel_id")

	if custom, ok := listAt(raw, "custom"); ok {
		for _, item := range custom {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			field := model.CustomField{}
			field.ID, _ = stringAt(entry, "id")
			field.Name, _ = stringAt(entry, "name")
			if v, ok := stringAt(entry, "value"); ok {
				field.Values = []string{v}
			}
			lead.CustomFields = append(lead.CustomFields, field)
		}
	}

	return lead, true
}

// Contact extracts the embedded contact, when the payload carries one.
func (e *LPTrackerEvent) Contact() (*model.Contact, bool) {
	raw, ok := mapAt(e.data, "lead", "contact")
	if !ok {
		return nil, false
	}

	contact := &model.Contact{}
	contact.ID, _ = stringAt(raw, "id")
	contact.Name, _ = stringAt(raw, "name")

	if phones, ok := listAt(raw, "phones"); ok && len(phones) > 0 {
		if s, ok := phones[0].(string); ok {
			contact.Phone = s
		}
	}
	if emails, ok := listAt(raw, "emails"); ok && len(emails) > 0 {
		if s, ok := emails[0].(string); ok {
			contact.Email = s
		}
	}

	return contact, true
}

// stringAt walks a path of nested maps and stringifies the leaf. Numbers
// are rendered without a decimal point when integral, matching how both
// platforms interchangeably ship numeric ids as strings or numbers.
func stringAt(data map[string]any, path ...string) (string, bool) {
	current := any(data)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = m[key]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, v != ""
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

func mapAt(data map[string]any, path ...string) (map[string]any, bool) {
	current := any(data)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	m, ok := current.(map[string]any)
	return m, ok
}

func listAt(data map[string]any, path ...string) ([]any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent := data
	if len(path) > 1 {
		var ok bool
		parent, ok = mapAt(data, path[:len(path)-1]...)
		if !ok {
			return nil, false
		}
	}
	list, ok := parent[path[len(path)-1]].([]any)
	return list, ok
}
