package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/internal/model"
)

type EventMessage struct {
	Source     model.Source
	EventID    int64
	Payload    []byte
	EnqueuedAt time.Time
	TraceID    *string
	Attempt    int
}

// Producer enqueues webhook jobs. Enqueue returns the queue-assigned job
// identifier (the stream entry ID).
type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) (string, error)
	Close() error
}

type redisProducer struct {
	client  *redis.Client
	streams map[model.Source]string
	logger  *slog.Logger
}

func NewRedisProducer(client *redis.Client, streams map[model.Source]string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client:  client,
		streams: streams,
		logger:  logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) (string, error) {
	stream, ok := p.streams[msg.Source]
	if !ok {
		return "", fmt.Errorf("no stream configured for source %q", msg.Source)
	}

	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	enqueuedAt := msg.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	fields := map[string]any{
		"source":      string(msg.Source),
		"event_id":    msg.EventID,
		"payload":     string(msg.Payload),
		"enqueued_at": enqueuedAt.Unix(),
		"attempt":     attempt,
	}
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	jobID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue webhook event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued webhook event",
		"job_id", jobID, "event_id", msg.EventID, "source", msg.Source, "stream", stream, "attempt", attempt)
	return jobID, nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
