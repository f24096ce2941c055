package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/model"
)

type ConsumerConfig struct {
	Stream       string        // Redis stream name (one per webhook source)
	Group        string        // Redis consumer group name
	Consumer     string        // Redis consumer name, unique per process
	DLQStream    string        // Dead letter queue stream for exhausted messages
	BatchSize    int64         // Number of messages to read per batch
	Block        time.Duration // How long to block/poll for new messages
	MaxAttempts  int           // Maximum retry attempts before moving to DLQ
	BackoffBase  time.Duration // Exponential backoff base for requeue delay
}

// MessageProcessor processes a queue message.
type MessageProcessor func(ctx context.Context, msg Message) error

// streamClient is the slice of redis commands the consumer issues.
// *redis.Client satisfies it.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XLen(ctx context.Context, stream string) *redis.IntCmd
	XPending(ctx context.Context, stream, group string) *redis.XPendingCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type RedisConsumer struct {
	client streamClient
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Consumer groups are just readers, messages live in the stream itself.
	// Starting from "0" instead of "$" means we don't lose messages that
	// arrived while no group existed.
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "bridge.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// > = new messages not yet delivered to anyone. Unacked messages
		// are handled by the reclaimer on a separate goroutine.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := ParseMessage(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse message",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", c.cfg.Stream)
				_ = c.Ack(ctx, Message{ID: msg.ID, Raw: msg})
				continue
			}
			messages = append(messages, parsed)
		}
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "read messages from stream",
			"count", len(messages),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return messages, nil
}

// Ack acknowledges a successfully processed message.
func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.ack(ctx, msg); err != nil {
		return err
	}

	// Completed counter backs queue stats; best effort.
	_ = c.client.Incr(ctx, completedKey(c.cfg.Stream)).Err()

	slog.DebugContext(ctx, "message acknowledged", "stream", c.cfg.Stream)
	return nil
}

// ack removes the message from the pending entries list without counting
// it as completed. Requeue and SendDLQ use it to move a message elsewhere.
func (c *RedisConsumer) ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue re-adds a failed message with an incremented attempt counter,
// delayed by exponential backoff (base * 2^(attempt-1)). The new entry is
// written before the old one is acked: a crash in between leaves both
// copies live, and the reclaimed duplicate is absorbed by dedup. Acking
// first would lose the message entirely on a crash during the delay.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	nextAttempt := msg.Attempt + 1

	values := messageValues(msg, nextAttempt)
	if errMsg != "" {
		values["last_error"] = errMsg
	}

	if delay := c.backoff(msg.Attempt); delay > 0 {
		time.Sleep(delay)
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	if err := c.ack(ctx, msg); err != nil {
		return fmt.Errorf("acking requeued message: %w", err)
	}

	slog.InfoContext(ctx, "message requeued for retry",
		"next_attempt", nextAttempt,
		"reason", errMsg)
	return nil
}

func (c *RedisConsumer) backoff(attempt int) time.Duration {
	if c.cfg.BackoffBase <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	return c.cfg.BackoffBase << (attempt - 1)
}

// SendDLQ parks an exhausted message on the dead letter stream. Same
// write-then-ack ordering as Requeue.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := messageValues(msg, msg.Attempt)
	values["error"] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	if err := c.ack(ctx, msg); err != nil {
		return fmt.Errorf("acking dead-lettered message: %w", err)
	}

	slog.ErrorContext(ctx, "message sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

// Stats reports waiting/active/completed/failed counts for the stream.
func (c *RedisConsumer) Stats(ctx context.Context) (Stats, error) {
	length, err := c.client.XLen(ctx, c.cfg.Stream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("xlen: %w", err)
	}

	var active int64
	if pending, err := c.client.XPending(ctx, c.cfg.Stream, c.cfg.Group).Result(); err == nil {
		active = pending.Count
	}

	completed, _ := c.client.Get(ctx, completedKey(c.cfg.Stream)).Int64()

	failed, err := c.client.XLen(ctx, c.cfg.DLQStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		failed = 0
	}

	waiting := length - active
	if waiting < 0 {
		waiting = 0
	}

	return Stats{
		Stream:    c.cfg.Stream,
		Waiting:   waiting,
		Active:    active,
		Completed: completed,
		Failed:    failed,
	}, nil
}

func (c *RedisConsumer) Stream() string {
	return c.cfg.Stream
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	sourceStr, err := parseOptionalString(msg.Values, "source")
	if err != nil {
		return Message{}, err
	}
	source := model.Source(sourceStr)
	if !source.Valid() {
		return Message{}, fmt.Errorf("unknown source %q", sourceStr)
	}

	payload, err := parseOptionalString(msg.Values, "payload")
	if err != nil {
		return Message{}, err
	}
	if payload == "" {
		return Message{}, fmt.Errorf("missing payload")
	}

	eventID, err := parseOptionalInt64(msg.Values, "event_id")
	if err != nil {
		return Message{}, err
	}
	enqueuedAt, err := parseOptionalInt64(msg.Values, "enqueued_at")
	if err != nil {
		return Message{}, err
	}
	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Message{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:         msg.ID,
		Source:     source,
		EventID:    eventID,
		Payload:    []byte(payload),
		EnqueuedAt: enqueuedAt,
		Attempt:    attempt,
		TraceID:    traceID,
		Raw:        msg,
	}, nil
}

func parseOptionalInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}

func messageValues(msg Message, attempt int) map[string]any {
	values := map[string]any{
		"source":      string(msg.Source),
		"payload":     string(msg.Payload),
		"attempt":     attempt,
		"enqueued_at": msg.EnqueuedAt,
	}
	if msg.EventID != 0 {
		values["event_id"] = msg.EventID
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}
	return values
}
