package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/core/db"
	"github.com/leadbridge/bridge/internal/model"
)

type settingsStore struct {
	q db.Querier
}

func newSettingsStore(q db.Querier) *settingsStore {
	return &settingsStore{q: q}
}

const settingsColumns = `id, user_id, platform, is_active, subdomain, project_id, access_token, created_at, updated_at`

func (s *settingsStore) GetByUserAndPlatform(ctx context.Context, userID int64, platform model.Source) (*model.Settings, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM platform_settings WHERE user_id = $1 AND platform = $2`,
		userID, platform)
	settings, err := scanSettings(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return settings, nil
}

func (s *settingsStore) ListByPlatform(ctx context.Context, platform model.Source) ([]model.Settings, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+settingsColumns+` FROM platform_settings WHERE platform = $1 AND is_active`, platform)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var all []model.Settings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning settings: %w", err)
		}
		all = append(all, *settings)
	}
	return all, rows.Err()
}

func (s *settingsStore) Upsert(ctx context.Context, settings *model.Settings) error {
	if settings.ID == 0 {
		settings.ID = id.New()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO platform_settings (id, user_id, platform, is_active, subdomain, project_id, access_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (user_id, platform) DO UPDATE
		 SET is_active = EXCLUDED.is_active,
		     subdomain = EXCLUDED.subdomain,
		     project_id = EXCLUDED.project_id,
		     access_token = EXCLUDED.access_token,
		     updated_at = now()`,
		settings.ID, settings.UserID, settings.Platform, settings.IsActive,
		settings.Subdomain, settings.ProjectID, settings.AccessToken)
	if err != nil {
		return fmt.Errorf("upserting settings: %w", err)
	}
	return nil
}

func (s *settingsStore) Delete(ctx context.Context, settingsID int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM platform_settings WHERE id = $1`, settingsID)
	if err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSettings(row pgx.Row) (*model.Settings, error) {
	var settings model.Settings
	if err := row.Scan(
		&settings.ID, &settings.UserID, &settings.Platform, &settings.IsActive,
		&settings.Subdomain, &settings.ProjectID, &settings.AccessToken,
		&settings.CreatedAt, &settings.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &settings, nil
}
