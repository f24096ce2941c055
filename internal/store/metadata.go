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

type metadataStore struct {
	q db.Querier
}

func newMetadataStore(q db.Querier) *metadataStore {
	return &metadataStore{q: q}
}

func (s *metadataStore) Get(ctx context.Context, userID int64, platform model.Source, kind string) (*model.Metadata, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, user_id, platform, kind, value, updated_at
		 FROM platform_metadata
		 WHERE user_id = $1 AND platform = $2 AND kind = $3`,
		userID, platform, kind)

	var meta model.Metadata
	if err := row.Scan(&meta.ID, &meta.UserID, &meta.Platform, &meta.Kind, &meta.Value, &meta.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting metadata: %w", err)
	}
	return &meta, nil
}

func (s *metadataStore) Put(ctx context.Context, meta *model.Metadata) error {
	if meta.ID == 0 {
		meta.ID = id.New()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO platform_metadata (id, user_id, platform, kind, value, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id, platform, kind) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = now()`,
		meta.ID, meta.UserID, meta.Platform, meta.Kind, meta.Value)
	if err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}
	return nil
}
