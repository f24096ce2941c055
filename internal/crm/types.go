package crm

import (
	"context"
	"fmt"

	"github.com/leadbridge/bridge/internal/model"
)

// SyncRecord is the normalized payload the action dispatcher hands to an
// adapter: everything the target platform needs to find-or-create the
// contact and write the lead.
type SyncRecord struct {
	ContactName   string            `json:"contact_name"`
	ContactPhone  string            `json:"contact_phone"`
	ContactEmail  string            `json:"contact_email"`
	LeadName      string            `json:"lead_name"`
	Price         string            `json:"price,omitempty"`
	CustomFields  map[string]string `json:"custom_fields,omitempty"`
	FieldMappings map[string]string `json:"field_mappings,omitempty"`
	PipelineID    string            `json:"pipeline_id,omitempty"`
	StatusID      string            `json:"status_id,omitempty"`
}

// FetchError is the typed error for non-2xx upstream responses. The
// processor treats enrichment fetch errors as retryable.
type FetchError struct {
	Platform   model.Source
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %s returned %d", e.Platform, e.URL, e.StatusCode)
}

// SettingsProvider resolves a user's platform credentials. Implemented by
// the configuration service; defined here so adapters stay decoupled from
// the cache wiring.
type SettingsProvider interface {
	SettingsFor(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error)
}

// AmoCRM is the adapter surface toward AmoCRM: entity reads for enrichment
// and the sync write.
type AmoCRM interface {
	GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error)
	GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error)
	SyncLead(ctx context.Context, userID int64, record SyncRecord, matchBy model.MatchStrategy) error
}

// LPTracker is the adapter surface toward LPTracker.
type LPTracker interface {
	GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error)
	GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error)
	SyncLead(ctx context.Context, userID int64, record SyncRecord, matchBy model.MatchStrategy) error
}
