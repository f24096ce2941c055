package model

import (
	"encoding/json"
	"time"
)

// Settings holds a user's credentials and account identity for one platform.
// The webhook pipeline reads these for owner resolution and outbound calls;
// mutation happens through the admin surface only.
type Settings struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Platform    Source    `json:"platform"`
	IsActive    bool      `json:"is_active"`
	Subdomain   string    `json:"subdomain,omitempty"`  // AmoCRM account subdomain
	ProjectID   string    `json:"project_id,omitempty"` // LPTracker project identifier
	AccessToken string    `json:"-"`                    // never expose tokens in API
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metadata stores cached platform reference data (pipelines, statuses,
// custom field definitions) fetched out-of-band from the CRMs.
type Metadata struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Platform  Source          `json:"platform"`
	Kind      string          `json:"kind"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
