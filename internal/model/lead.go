package model

// CustomField is one custom field on a lead or contact, normalized from the
// source platform's representation (keyed array for AmoCRM, keyed list for
// LPTracker). Values keeps multi-value fields intact; most fields carry one.
type CustomField struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Values []string `json:"values"`
}

// First returns the first value of the field, or "" when empty.
func (f CustomField) First() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Lead is the enriched upstream entity a webhook refers to.
type Lead struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Price        string        `json:"price,omitempty"`
	StatusID     string        `json:"status_id,omitempty"`
	PipelineID   string        `json:"pipeline_id,omitempty"`
	ContactIDs   []string      `json:"contact_ids,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// Contact is a person linked to a lead.
type Contact struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone,omitempty"`
	Email        string        `json:"email,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// Field looks up a custom field by ID or name. The bool reports presence.
func (l *Lead) Field(key string) (CustomField, bool) {
	return findField(l.CustomFields, key)
}

func (c *Contact) Field(key string) (CustomField, bool) {
	return findField(c.CustomFields, key)
}

func findField(fields []CustomField, key string) (CustomField, bool) {
	for _, f := range fields {
		if f.ID == key || (f.Name != "" && f.Name == key) {
			return f, true
		}
	}
	return CustomField{}, false
}
