package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/common/logger"
)

// Kind selects which class of configuration an entry caches.
// Each kind carries its own TTL: rules churn the fastest, platform
// metadata the slowest.
type Kind string

const (
	KindRules    Kind = "rules"
	KindSettings Kind = "settings"
	KindMetadata Kind = "metadata"
)

type Config struct {
	Namespace   string
	RulesTTL    time.Duration
	SettingsTTL time.Duration
	MetadataTTL time.Duration
}

// Cache is a read-through cache over configuration lookups. Values are
// opaque JSON to the cache itself; TTL and serialization are its only
// concerns. It is never authoritative for writes — mutation happens in the
// configuration store and callers invalidate here.
type Cache struct {
	client *redis.Client
	ns     string
	ttls   map[Kind]time.Duration
}

func New(client *redis.Client, cfg Config) *Cache {
	return &Cache{
		client: client,
		ns:     cfg.Namespace,
		ttls: map[Kind]time.Duration{
			KindRules:    orDefault(cfg.RulesTTL, 5*time.Minute),
			KindSettings: orDefault(cfg.SettingsTTL, 10*time.Minute),
			KindMetadata: orDefault(cfg.MetadataTTL, 30*time.Minute),
		},
	}
}

// Get reads through the cache: on a hit the stored JSON is decoded into
// dest; on a miss load is invoked to populate dest, and the result is
// cached with the kind's TTL. Redis failures degrade to a miss and never
// propagate as hard errors.
func (c *Cache) Get(ctx context.Context, kind Kind, userID int64, subkey string, dest any, load func(ctx context.Context) error) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "bridge.cache"})
	key := c.key(kind, userID, subkey)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if unmarshalErr := json.Unmarshal(data, dest); unmarshalErr == nil {
			return nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		slog.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "cache lookup failed, treating as miss", "error", err, "key", key)
	}

	if err := load(ctx); err != nil {
		return err
	}

	buf, err := json.Marshal(dest)
	if err != nil {
		slog.WarnContext(ctx, "cache value not serializable, skipping store", "error", err, "key", key)
		return nil
	}
	if err := c.client.Set(ctx, key, buf, c.ttls[kind]).Err(); err != nil {
		slog.WarnContext(ctx, "cache store failed", "error", err, "key", key)
	}
	return nil
}

// Invalidate clears every cache entry namespaced to the user across all
// kinds. Called whenever the configuration store mutates that user's rules
// or settings.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	// Two patterns so user 1 never matches user 10's keys.
	patterns := []string{
		fmt.Sprintf("%s:cfg:*:%d", c.ns, userID),
		fmt.Sprintf("%s:cfg:*:%d:*", c.ns, userID),
	}
	for _, pattern := range patterns {
		if err := c.deleteByPattern(ctx, pattern); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "user cache invalidated", "user_id", userID)
	return nil
}

// ClearAll drops every configuration cache entry. Operational use only.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.deleteByPattern(ctx, fmt.Sprintf("%s:cfg:*", c.ns)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "configuration cache cleared")
	return nil
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
	}
	return nil
}

func (c *Cache) key(kind Kind, userID int64, subkey string) string {
	if subkey == "" {
		return fmt.Sprintf("%s:cfg:%s:%d", c.ns, kind, userID)
	}
	return fmt.Sprintf("%s:cfg:%s:%d:%s", c.ns, kind, userID, subkey)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
