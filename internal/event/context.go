package event

import "github.com/leadbridge/bridge/internal/model"

// Context is what rule evaluation and action dispatch operate on: the raw
// event plus whatever enrichment produced. Lead is nil when enrichment was
// skipped or the source embeds the entity (LPTracker payloads populate it
// from the payload itself).
type Context struct {
	Event    Event
	Lead     *model.Lead
	Contacts []model.Contact
}

// StatusID resolves the stage identifier, preferring the enriched entity
// and falling back to the raw payload.
func (c *Context) StatusID() string {
	if c.Lead != nil && c.Lead.StatusID != "" {
		return c.Lead.StatusID
	}
	if v, ok := c.Event.StatusID(); ok {
		return v
	}
	return ""
}

// PipelineID resolves the pipeline/funnel identifier with the same fallback
// order as StatusID.
func (c *Context) PipelineID() string {
	if c.Lead != nil && c.Lead.PipelineID != "" {
		return c.Lead.PipelineID
	}
	if v, ok := c.Event.PipelineID(); ok {
		return v
	}
	return ""
}

// FieldValue looks a custom field up, enriched entity first, then the raw
// payload representation. First matching representation wins.
func (c *Context) FieldValue(key string) (string, bool) {
	if c.Lead != nil {
		if f, ok := c.Lead.Field(key); ok {
			return f.First(), true
		}
	}
	return c.Event.FieldValue(key)
}
