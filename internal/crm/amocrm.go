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

// AmoClient talks to the AmoCRM v4 API. Accounts are subdomain-scoped, so
// every call resolves the owning user's settings first.
type AmoClient struct {
	http     *http.Client
	domain   string
	settings SettingsProvider
}

type AmoConfig struct {
	Domain         string // e.g. "amocrm.ru"
	RequestTimeout time.Duration
}

func NewAmoClient(cfg AmoConfig, settings SettingsProvider) *AmoClient {
	domain := cfg.Domain
	if domain == "" {
		domain = "amocrm.ru"
	}
	return &AmoClient{
		http:     newHTTPClient(cfg.RequestTimeout),
		domain:   domain,
		settings: settings,
	}
}

type amoLeadResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      int64           `json:"price"`
	StatusID   int64           `json:"status_id"`
	PipelineID int64           `json:"pipeline_id"`
	Fields     []amoFieldValue `json:"custom_fields_values"`
	Embedded   struct {
		Contacts []struct {
			ID int64 `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}

type amoContactResponse struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Fields []amoFieldValue `json:"custom_fields_values"`
}

type amoFieldValue struct {
	FieldID   int64  `json:"field_id"`
	FieldName string `json:"field_name"`
	FieldCode string `json:"field_code"`
	Values    []struct {
		Value any `json:"value"`
	} `json:"values"`
}

func (c *AmoClient) GetLead(ctx context.Context, userID int64, leadID string) (*model.Lead, error) {
	settings, base, err := c.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	var resp amoLeadResponse
	reqURL := fmt.Sprintf("%s/api/v4/leads/%s?with=contacts", base, url.PathEscape(leadID))
	if err := doJSON(ctx, c.http, model.SourceAmoCRM, http.MethodGet, reqURL, c.headers(settings), nil, &resp); err != nil {
		return nil, err
	}

	lead := &model.Lead{
		ID:         strconv.FormatInt(resp.ID, 10),
		Name:       resp.Name,
		Price:      strconv.FormatInt(resp.Price, 10),
		StatusID:   strconv.FormatInt(resp.StatusID, 10),
		PipelineID: strconv.FormatInt(resp.PipelineID, 10),
	}
	for _, contact := range resp.Embedded.Contacts {
		lead.ContactIDs = append(lead.ContactIDs, strconv.FormatInt(contact.ID, 10))
	}
	lead.CustomFields = normalizeAmoFields(resp.Fields)

	return lead, nil
}

func (c *AmoClient) GetContact(ctx context.Context, userID int64, contactID string) (*model.Contact, error) {
	settings, base, err := c.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	var resp amoContactResponse
	reqURL := fmt.Sprintf("%s/api/v4/contacts/%s", base, url.PathEscape(contactID))
	if err := doJSON(ctx, c.http, model.SourceAmoCRM, http.MethodGet, reqURL, c.headers(settings), nil, &resp); err != nil {
		return nil, err
	}

	contact := &model.Contact{
		ID:           strconv.FormatInt(resp.ID, 10),
		Name:         resp.Name,
		CustomFields: normalizeAmoFields(resp.Fields),
	}
	for _, f := range resp.Fields {
		switch f.FieldCode {
		case "PHONE":
			if contact.Phone == "" && len(f.Values) > 0 {
				contact.Phone = fmt.Sprint(f.Values[0].Value)
			}
		case "EMAIL":
			if contact.Email == "" && len(f.Values) > 0 {
				contact.Email = fmt.Sprint(f.Values[0].Value)
			}
		}
	}

	return contact, nil
}

// SyncLead writes a normalized record into the user's AmoCRM account.
// The complex endpoint creates the lead and its contact in one call; the
// match strategy first tries to reuse an existing contact.
func (c *AmoClient) SyncLead(ctx context.Context, userID int64, record SyncRecord, matchBy model.MatchStrategy) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "bridge.crm.amocrm"})

	settings, base, err := c.account(ctx, userID)
	if err != nil {
		return err
	}

	contactID, err := c.findContact(ctx, settings, base, record, matchBy)
	if err != nil {
		// Match lookup failure falls back to creating a fresh contact.
		slog.WarnContext(ctx, "amocrm contact lookup failed, creating new contact", "error", err)
		contactID = 0
	}

	lead := map[string]any{
		"name": record.LeadName,
	}
	if record.Price != "" {
		if price, err := strconv.ParseInt(record.Price, 10, 64); err == nil {
			lead["price"] = price
		}
	}
	if record.PipelineID != "" {
		if id, err := strconv.ParseInt(record.PipelineID, 10, 64); err == nil {
			lead["pipeline_id"] = id
		}
	}
	if record.StatusID != "" {
		if id, err := strconv.ParseInt(record.StatusID, 10, 64); err == nil {
			lead["status_id"] = id
		}
	}
	if fields := mappedAmoFields(record); len(fields) > 0 {
		lead["custom_fields_values"] = fields
	}

	embedded := map[string]any{}
	if contactID != 0 {
		embedded["contacts"] = []map[string]any{{"id": contactID}}
	} else {
		embedded["contacts"] = []map[string]any{newAmoContactPayload(record)}
	}
	lead["_embedded"] = embedded

	reqURL := base + "/api/v4/leads/complex"
	if err := doJSON(ctx, c.http, model.SourceAmoCRM, http.MethodPost, reqURL, c.headers(settings), []any{lead}, nil); err != nil {
		return fmt.Errorf("syncing lead to amocrm: %w", err)
	}

	slog.InfoContext(ctx, "lead synced to amocrm",
		"lead_name", record.LeadName, "matched_contact_id", contactID)
	return nil
}

func (c *AmoClient) findContact(ctx context.Context, settings *model.Settings, base string, record SyncRecord, matchBy model.MatchStrategy) (int64, error) {
	query := ""
	switch matchBy {
	case model.MatchByEmail:
		query = record.ContactEmail
	case model.MatchByName:
		query = record.ContactName
	default:
		query = record.ContactPhone
	}
	if query == "" {
		return 0, nil
	}

	var resp struct {
		Embedded struct {
			Contacts []struct {
				ID int64 `json:"id"`
			} `json:"contacts"`
		} `json:"_embedded"`
	}
	reqURL := fmt.Sprintf("%s/api/v4/contacts?query=%s&limit=1", base, url.QueryEscape(query))
	err := doJSON(ctx, c.http, model.SourceAmoCRM, http.MethodGet, reqURL, c.headers(settings), nil, &resp)
	if err != nil {
		// The API answers a missing match with 404 rather than an empty page.
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(resp.Embedded.Contacts) == 0 {
		return 0, nil
	}
	return resp.Embedded.Contacts[0].ID, nil
}

func (c *AmoClient) account(ctx context.Context, userID int64) (*model.Settings, string, error) {
	settings, err := c.settings.SettingsFor(ctx, userID, model.SourceAmoCRM)
	if err != nil {
		return nil, "", fmt.Errorf("resolving amocrm settings: %w", err)
	}
	if settings.Subdomain == "" {
		return nil, "", fmt.Errorf("amocrm settings for user %d have no subdomain", userID)
	}
	return settings, fmt.Sprintf("https://%s.%s", settings.Subdomain, c.domain), nil
}

func (c *AmoClient) headers(settings *model.Settings) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + settings.AccessToken,
	}
}

func normalizeAmoFields(fields []amoFieldValue) []model.CustomField {
	var out []model.CustomField
	for _, f := range fields {
		key := f.FieldCode
		if key == "" {
			key = strconv.FormatInt(f.FieldID, 10)
		}
		field := model.CustomField{ID: key, Name: f.FieldName}
		for _, v := range f.Values {
			field.Values = append(field.Values, fmt.Sprint(v.Value))
		}
		out = append(out, field)
	}
	return out
}

// mappedAmoFields translates the record's custom fields through the
// action's field-mapping table into AmoCRM field ids.
func mappedAmoFields(record SyncRecord) []map[string]any {
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
		out = append(out, map[string]any{
			"field_id": fieldID,
			"values":   []map[string]any{{"value": value}},
		})
	}
	return out
}

func newAmoContactPayload(record SyncRecord) map[string]any {
	contact := map[string]any{
		"name": record.ContactName,
	}
	var fields []map[string]any
	if record.ContactPhone != "" {
		fields = append(fields, map[string]any{
			"field_code": "PHONE",
			"values":     []map[string]any{{"value": record.ContactPhone}},
		})
	}
	if record.ContactEmail != "" {
		fields = append(fields, map[string]any{
			"field_code": "EMAIL",
			"values":     []map[string]any{{"value": record.ContactEmail}},
		})
	}
	if len(fields) > 0 {
		contact["custom_fields_values"] = fields
	}
	return contact
}
