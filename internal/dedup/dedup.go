package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimestampToken replaces a missing action timestamp in dedup keys,
// so repeated deliveries of timestamp-less events still collapse onto the
// same key.
const DefaultTimestampToken = "default"

// Key composes the dedup key for one (user, entity, rule, timestamp)
// combination. Keys are namespaced per deployment by the store.
func Key(userID int64, externalID string, ruleID int64, actionTimestamp string) string {
	ts := actionTimestamp
	if ts == "" {
		ts = DefaultTimestampToken
	}
	return fmt.Sprintf("webhook:%d:%s:%d:%s", userID, externalID, ruleID, ts)
}

// Store records which events have already been acted on, with per-key
// expiry. A rule may legitimately re-fire for the same entity once the TTL
// window passes (the deal re-enters the same stage later).
type Store struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

type Config struct {
	Namespace string
	TTL       time.Duration
}

func NewStore(client *redis.Client, cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       ttl,
	}
}

// Seen reports whether the key has already been marked within the TTL window.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.namespaced(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// Mark records the key with the configured TTL. Check-then-mark is not
// atomic across workers; a rare duplicate dispatch inside the race window
// is accepted.
func (s *Store) Mark(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, s.namespaced(key), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	slog.DebugContext(ctx, "dedup key marked", "key", key, "ttl", s.ttl)
	return nil
}

// TTL exposes the suppression window, mainly for stats and tests.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) namespaced(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}
