package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/model"
)

// LPClient talks to the LPTracker direct API. Authentication is a per-user
// session token carried in the "token" header; leads live under a project.
type LPClient struct {
	http     *http.Client
	baseURL  string
	settings SettingsProvider
}

type LPConfig struct {
	BaseURL        string // e.g. "https://direct.lptracker.ru"
	RequestTimeout time.Duration
}

func NewLPClient(cfg LPConfig, settings SettingsProvider) *LPClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://direct.lptracker.ru"
	}
	return &LPClient{
		http:     newHTTPClient(cfg.RequestTimeout),
		baseURL:  base,
		settings: settings,
	}
}

type lpLeadResponse struct {
	Result struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		StageID  int64  `json:"stage_id"`
		FunnelID int64  `json:"funnel_id"`
		Payment struct {
			Price string `json:"price"`
		} `json:"payment"`
		ContactID int64 `json:"contact_id"`
		Custom    []struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"custom"`
	} `json:"result"`
}

type lpContactResponse struct {
	Result struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Details []struct {
			Type string `json:"type"` // "phone" or "email"
			Data string `json:"data"`
		} `json:"details"`
	} `json:"result"`
}

func (c *LPClient) GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error) {
	settings, err := c.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	var resp lpLeadResponse
	reqURL := fmt.Sprintf("%s/lead/%s", c.baseURL, url.PathEscape(leadID))
	if err := doJSON(ctx, c.http, model.SourceLPTracker, http.MethodGet, reqURL, c.headers(settings), nil, &resp); err != nil {
		return nil, err
	}

	lead := &model.Lead{
		ID:         strconv.FormatInt(resp.Result.ID, 10),
		Name:       resp.Result.Name,
		Price:      resp.Result.Payment.Price,
		StatusID:   strconv.FormatInt(resp.Result.StageID, 10),
		PipelineID: strconv.FormatInt(resp.Result.FunnelID, 10),
	}
	if resp.Result.ContactID != 0 {
		lead.ContactIDs = []string{strconv.FormatInt(resp.Result.ContactID, 10)}
	}
	for _, f := range resp.Result.Custom {
		lead.CustomFields = append(lead.CustomFields, model.CustomField{
			ID:     strconv.FormatInt(f.ID, 10),
			Name:   f.Name,
			Values: []string{f.Value},
		})
	}

	return lead, nil
}

func (c *LPClient) GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error) {
	settings, err := c.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	var resp lpContactResponse
	reqURL := fmt.Sprintf("%s/contact/%s", c.baseURL, url.PathEscape(contactID))
	if err := doJSON(ctx, c.http, model.SourceLPTracker, http.MethodGet, reqURL, c.headers(settings), nil, &resp); err != nil {
		return nil, err
	}

	contact := &model.Contact{
		ID:   strconv.FormatInt(resp.Result.ID, 10),
		Name: resp.Result.Name,
	}
	for _, d := range resp.Result.Details {
		switch d.Type {
		case "phone":
			if contact.Phone == "" {
				contact.Phone = d.Data
			}
		case "email":
			if contact.Email == "" {
				contact.Email = d.Data
			}
		}
	}

	return contact, nil
}

// SyncLead writes a normalized record into the user's LPTracker project,
// reusing an existing contact when the match strategy finds one.
func (c *LPClient) SyncLead(ctx context.Context, userID int64, record SyncRecord, matchBy model.MatchStrategy) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "bridge.crm.lptracker"})

	settings, err := c.credentials(ctx, userID)
	if err != nil {
		return err
	}

	contactID, err := c.findContact(ctx, settings, record, matchBy)
	if err != nil {
		slog.WarnContext(ctx, "lptracker contact lookup failed, creating new contact", "error", err)
		contactID = 0
	}

	if contactID == 0 {
		contactID, err = c.createContact(ctx, settings, record)
		if err != nil {
			return fmt.Errorf("creating lptracker contact: %w", err)
		}
	}

	body := map[string]any{
		"contact_id": contactID,
		"name":       record.LeadName,
	}
	if record.StatusID != "" {
		if id, err := strconv.ParseInt(record.StatusID, 10, 64); err == nil {
			body["stage_id"] = id
		}
	}
	if record.PipelineID != "" {
		if id, err := strconv.ParseInt(record.PipelineID, 10, 64); err == nil {
			body["funnel_id"] = id
		}
	}
	if record.Price != "" {
		body["payment"] = map[string]any{"price": record.Price}
	}
	if custom := mappedLPFields(record); len(custom) > 0 {
		body["custom"] = custom
	}

	reqURL := c.baseURL + "/lead"
	if err := doJSON(ctx, c.http, model.SourceLPTracker, http.MethodPost, reqURL, c.headers(settings), body, nil); err != nil {
		return fmt.Errorf("syncing lead to lptracker: %w", err)
	}

	slog.InfoContext(ctx, "lead synced to lptracker",
		"lead_name", record.LeadName, "contact_id", contactID)
	return nil
}

func (c *LPClient) findContact(ctx context.Context, settings *model.Settings, record SyncRecord, matchBy model.MatchStrategy) (int64, error) {
	body := map[string]any{
		"project_id": settings.ProjectID,
	}
	switch matchBy {
	case model.MatchByEmail:
		if record.ContactEmail == "" {
			return 0, nil
		}
		body["email"] = record.ContactEmail
	case model.MatchByName:
		if record.ContactName == "" {
			return 0, nil
		}
		body["name"] = record.ContactName
	default:
		if record.ContactPhone == "" {
			return 0, nil
		}
		body["phone"] = record.ContactPhone
	}

	var resp struct {
		Result []struct {
			ID int64 `json:"id"`
		} `json:"result"`
	}
	reqURL := c.baseURL + "/contact/search"
	if err := doJSON(ctx, c.http, model.SourceLPTracker, http.MethodPost, reqURL, c.headers(settings), body, &resp); err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(resp.Result) == 0 {
		return 0, nil
	}
	return resp.Result[0].ID, nil
}

func (c *LPClient) createContact(ctx context.Context, settings *model.Settings, record SyncRecord) (int64, error) {
	var details []map[string]any
	if record.ContactPhone != "" {
		details = append(details, map[string]any{"type": "phone", "data": record.ContactPhone})
	}
	if record.ContactEmail != "" {
		details = append(details, map[string]any{"type": "email", "data": record.ContactEmail})
	}

	body := map[string]any{
		"project_id": settings.ProjectID,
		"name":       record.ContactName,
		"details":    details,
	}

	var resp struct {
		Result struct {
			ID int64 `json:"id"`
		} `json:"result"`
	}
	reqURL := c.baseURL + "/contact"
	if err := doJSON(ctx, c.http, model.SourceLPTracker, http.MethodPost, reqURL, c.headers(settings), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.ID, nil
}

func (c *LPClient) credentials(ctx context.Context, userID int64) (*model.Settings, error) {
	settings, err := c.settings.SettingsFor(ctx, userID, model.SourceLPTracker)
	if err != nil {
		return nil, fmt.Errorf("resolving lptracker settings: %w", err)
	}
	if settings.AccessToken == "" {
		return nil, fmt.Errorf("lptracker settings for user %d have no token", userID)
	}
	return settings, nil
}

func (c *LPClient) headers(settings *model.Settings) map[string]string {
	return map[string]string{
		"token": settings.AccessToken,
	}
}

func mappedLPFields(record SyncRecord) []map[string]any {
	var out []map[string]any
	for source, target := range record.FieldMappings {
		value, ok := record.CustomFields[source]
		if !ok || value == "" {
			continue
		}
		fieldID, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{"id": fieldID, "value": value})
	}
	return out
}
