package event

import (
	"fmt"

	"github.com/leadbridge/bridge/internal/model"
)

// AmoEvent wraps an AmoCRM webhook payload. AmoCRM posts
// application/x-www-form-urlencoded bodies with PHP-style indexed keys
// ("leads[status][0][id]"), which the webhook handler flattens into a
// string map before enqueueing.
type AmoEvent struct {
	fields map[string]string
}

func NewAmoEvent(fields map[string]string) *AmoEvent {
	return &AmoEvent{fields: fields}
}

// amoEventGroups maps the payload group an event arrived under to its
// normalized type tag. Order matters: status changes take priority when a
// payload carries several groups.
var amoEventGroups = []struct {
	prefix    string
	eventType string
}{
	{"leads[status]", "lead_status_changed"},
	{"leads[add]", "lead_added"},
	{"leads[update]", "lead_updated"},
	{"leads[delete]", "lead_deleted"},
	{"leads[note]", "lead_note_added"},
	{"contacts[add]", "contact_added"},
	{"contacts[update]", "contact_updated"},
}

// amoEntityIDKeys is the fixed priority order for extracting the lead id.
// Different event shapes populate different keys; first populated one wins.
var amoEntityIDKeys = []string{
	"leads[status][0][id]",
	"leads[update][0][id]",
	"leads[add][0][id]",
	"leads[delete][0][id]",
	"leads[note][0][element_id]",
	"contacts[update][0][linked_leads_id]",
}

func (e *AmoEvent) Source() model.Source {
	return model.SourceAmoCRM
}

func (e *AmoEvent) Type() string {
	for _, g := range amoEventGroups {
		if e.hasGroup(g.prefix) {
			return g.eventType
		}
	}
	return "unknown"
}

func (e *AmoEvent) hasGroup(prefix string) bool {
	for key := range e.fields {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (e *AmoEvent) EntityID() (string, bool) {
	for _, key := range amoEntityIDKeys {
		if v, ok := e.fields[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (e *AmoEvent) OwnerKey() (string, bool) {
	v, ok := e.fields["account[subdomain]"]
	return v, ok && v != ""
}

// AmoCRM webhooks never carry a changed-field list; the relevance filter
// treats the event as always relevant.
func (e *AmoEvent) UpdatedFields() []string {
	return nil
}

func (e *AmoEvent) ActionTimestamp() (string, bool) {
	for _, g := range amoEventGroups {
		key := fmt.Sprintf("%s[0][last_modified]", g.prefix)
		if v, ok := e.fields[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (e *AmoEvent) StatusID() (string, bool) {
	return e.groupField("status_id")
}

func (e *AmoEvent) PipelineID() (string, bool) {
	return e.groupField("pipeline_id")
}

func (e *AmoEvent) groupField(name string) (string, bool) {
	for _, g := range amoEventGroups {
		key := fmt.Sprintf("%s[0][%s]", g.prefix, name)
		if v, ok := e.fields[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// FieldValue scans the keyed custom-field array of the payload:
// leads[update][0][custom_fields][N][id] / ...[custom_fields][N][values][0][value].
func (e *AmoEvent) FieldValue(key string) (string, bool) {
	for _, g := range amoEventGroups {
		for n := 0; ; n++ {
			idKey := fmt.Sprintf("%s[0][custom_fields][%d][id]", g.prefix, n)
			id, ok := e.fields[idKey]
			if !ok {
				break
			}
			nameKey := fmt.Sprintf("%s[0][custom_fields][%d][name]", g.prefix, n)
			if id != key && e.fields[nameKey] != key {
				continue
			}
			valueKey := fmt.Sprintf("%s[0][custom_fields][%d][values][0][value]", g.prefix, n)
			return e.fields[valueKey], true
		}
	}
	return "", false
}

func (e *AmoEvent) Raw() map[string]any {
	raw := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		raw[k] = v
	}
	return raw
}
