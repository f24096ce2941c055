package rule

import "github.com/leadbridge/bridge/internal/model"

// mustProcessFields always make an event relevant when changed, regardless
// of rule content: stage movements and payment changes are what cross-CRM
// sync exists for.
var mustProcessFields = map[string]struct{}{
	"stage_id":       {},
	"status_id":      {},
	"funnel_id":      {},
	"pipeline_id":    {},
	"payment_price":  {},
	"payment_status": {},
	"price":          {},
}

// Relevant reports whether an event's changed fields can affect the rule's
// outcome. updatedFields nil means the payload carried no change list and
// the event is assumed relevant. A non-nil list is checked against the
// must-process set, then against every field the rule's conditions or
// action field-mappings reference.
func Relevant(r model.SyncRule, updatedFields []string) bool {
	if updatedFields == nil {
		return true
	}

	for _, f := range updatedFields {
		if _, ok := mustProcessFields[f]; ok {
			return true
		}
	}

	referenced := referencedFields(r)
	for _, f := range updatedFields {
		if _, ok := referenced[f]; ok {
			return true
		}
	}

	return false
}

func referencedFields(r model.SyncRule) map[string]struct{} {
	fields := make(map[string]struct{})
	for _, c := range r.Conditions.Rules {
		if c.Field != "" {
			fields[c.Field] = struct{}{}
		}
	}
	for _, a := range r.Actions {
		for source := range a.FieldMappings {
			fields[source] = struct{}{}
		}
	}
	return fields
}
