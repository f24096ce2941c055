package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/internal/model"
)

// fakeStreamClient records the order of issued commands.
type fakeStreamClient struct {
	ops     []string
	addArgs []*redis.XAddArgs
	acked   []string
	addErr  error
}

func (f *fakeStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	f.ops = append(f.ops, "xgroupcreate")
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.ops = append(f.ops, "xreadgroup")
	return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
}

func (f *fakeStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.ops = append(f.ops, "xack")
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(1, nil)
}

func (f *fakeStreamClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.ops = append(f.ops, "xadd")
	f.addArgs = append(f.addArgs, a)
	return redis.NewStringResult("1700000000001-0", f.addErr)
}

func (f *fakeStreamClient) XLen(ctx context.Context, stream string) *redis.IntCmd {
	return redis.NewIntResult(0, nil)
}

func (f *fakeStreamClient) XPending(ctx context.Context, stream, group string) *redis.XPendingCmd {
	return redis.NewXPendingResult(&redis.XPending{}, nil)
}

func (f *fakeStreamClient) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStreamClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.ops = append(f.ops, "incr")
	return redis.NewIntResult(1, nil)
}

func TestParseMessage(t *testing.T) {
	msg := redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]any{
			"source":      "amocrm",
			"payload":     `{"account[subdomain]":"acme"}`,
			"event_id":    "987654321",
			"enqueued_at": "1700000000",
			"attempt":     "2",
			"trace_id":    "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	parsed, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.ID != "1700000000000-0" {
		t.Errorf("ID = %q", parsed.ID)
	}
	if parsed.Source != model.SourceAmoCRM {
		t.Errorf("Source = %q", parsed.Source)
	}
	if parsed.EventID != 987654321 {
		t.Errorf("EventID = %d", parsed.EventID)
	}
	if string(parsed.Payload) != `{"account[subdomain]":"acme"}` {
		t.Errorf("Payload = %q", parsed.Payload)
	}
	if parsed.EnqueuedAt != 1700000000 {
		t.Errorf("EnqueuedAt = %d", parsed.EnqueuedAt)
	}
	if parsed.Attempt != 2 {
		t.Errorf("Attempt = %d", parsed.Attempt)
	}
	if parsed.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("TraceID = %q", parsed.TraceID)
	}
}

func TestParseMessageDefaults(t *testing.T) {
	// first delivery carries no attempt counter
	parsed, err := ParseMessage(redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"source":  "lptracker",
			"payload": `{"action":"lead_new"}`,
		},
	})
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", parsed.Attempt)
	}
	if parsed.EventID != 0 || parsed.TraceID != "" {
		t.Errorf("optional fields = %d/%q, want zero values", parsed.EventID, parsed.TraceID)
	}
}

func TestParseMessageRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{
			name:   "unknown source",
			values: map[string]any{"source": "bitrix", "payload": "{}"},
		},
		{
			name:   "missing source",
			values: map[string]any{"payload": "{}"},
		},
		{
			name:   "missing payload",
			values: map[string]any{"source": "amocrm"},
		},
		{
			name:   "garbage attempt",
			values: map[string]any{"source": "amocrm", "payload": "{}", "attempt": "many"},
		},
		{
			name:   "garbage event_id",
			values: map[string]any{"source": "amocrm", "payload": "{}", "event_id": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(redis.XMessage{ID: "1-0", Values: tt.values}); err == nil {
				t.Error("ParseMessage() accepted invalid message")
			}
		})
	}
}

func TestBackoffProgression(t *testing.T) {
	c := &RedisConsumer{cfg: ConsumerConfig{BackoffBase: 2 * time.Second}}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 2 * time.Second}, // clamped to first attempt
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	disabled := &RedisConsumer{cfg: ConsumerConfig{}}
	if got := disabled.backoff(3); got != 0 {
		t.Errorf("backoff with zero base = %v, want 0", got)
	}
}

func TestMessageValuesRoundTrip(t *testing.T) {
	msg := Message{
		Source:     model.SourceLPTracker,
		EventID:    55,
		Payload:    []byte(`{"action":"lead_update"}`),
		EnqueuedAt: 1700000000,
		TraceID:    "abc",
	}
	values := messageValues(msg, 3)

	if values["source"] != "lptracker" || values["attempt"] != 3 {
		t.Errorf("values = %v", values)
	}
	if values["payload"] != `{"action":"lead_update"}` {
		t.Errorf("payload = %v", values["payload"])
	}

	// zero-valued optionals are omitted from the entry
	values = messageValues(Message{Source: model.SourceAmoCRM, Payload: []byte("{}")}, 1)
	if _, ok := values["event_id"]; ok {
		t.Error("event_id present for zero EventID")
	}
	if _, ok := values["trace_id"]; ok {
		t.Error("trace_id present for empty TraceID")
	}
}

func TestRequeueWritesBeforeAck(t *testing.T) {
	fake := &fakeStreamClient{}
	c := &RedisConsumer{
		client: fake,
		cfg:    ConsumerConfig{Stream: "amocrm-webhook", Group: "bridge-workers"},
	}

	msg := Message{
		ID:         "1700000000000-0",
		Source:     model.SourceAmoCRM,
		Payload:    []byte(`{"leads":{}}`),
		Attempt:    1,
		EnqueuedAt: 1700000000,
	}
	if err := c.Requeue(context.Background(), msg, "settings lookup: connection refused"); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	// The retry copy must hit the stream before the original is acked, so a
	// crash in between duplicates instead of losing the message.
	if len(fake.ops) != 2 || fake.ops[0] != "xadd" || fake.ops[1] != "xack" {
		t.Fatalf("ops = %v, want [xadd xack]", fake.ops)
	}
	if got := fake.addArgs[0].Stream; got != "amocrm-webhook" {
		t.Errorf("requeued to stream %q", got)
	}
	if got := fake.addArgs[0].Values.(map[string]any)["attempt"]; got != 2 {
		t.Errorf("attempt = %v, want 2", got)
	}
	if got := fake.addArgs[0].Values.(map[string]any)["last_error"]; got != "settings lookup: connection refused" {
		t.Errorf("last_error = %v", got)
	}
	if len(fake.acked) != 1 || fake.acked[0] != msg.ID {
		t.Errorf("acked = %v, want [%s]", fake.acked, msg.ID)
	}
}

func TestRequeueKeepsMessagePendingOnAddFailure(t *testing.T) {
	fake := &fakeStreamClient{addErr: errors.New("redis down")}
	c := &RedisConsumer{
		client: fake,
		cfg:    ConsumerConfig{Stream: "amocrm-webhook", Group: "bridge-workers"},
	}

	msg := Message{ID: "1700000000000-0", Source: model.SourceAmoCRM, Payload: []byte("{}"), Attempt: 1}
	if err := c.Requeue(context.Background(), msg, "boom"); err == nil {
		t.Fatal("Requeue() expected error when xadd fails")
	}
	if len(fake.acked) != 0 {
		t.Errorf("acked = %v, want none; the pending entry is the only copy left", fake.acked)
	}
}

func TestSendDLQWritesBeforeAck(t *testing.T) {
	fake := &fakeStreamClient{}
	c := &RedisConsumer{
		client: fake,
		cfg: ConsumerConfig{
			Stream:    "lptracker-webhook",
			Group:     "bridge-workers",
			DLQStream: "lptracker-webhook-dlq",
		},
	}

	msg := Message{
		ID:      "1700000000000-1",
		Source:  model.SourceLPTracker,
		Payload: []byte(`{"action":"lead_update"}`),
		Attempt: 3,
	}
	if err := c.SendDLQ(context.Background(), msg, "max attempts exhausted"); err != nil {
		t.Fatalf("SendDLQ() error = %v", err)
	}

	if len(fake.ops) != 2 || fake.ops[0] != "xadd" || fake.ops[1] != "xack" {
		t.Fatalf("ops = %v, want [xadd xack]", fake.ops)
	}
	if got := fake.addArgs[0].Stream; got != "lptracker-webhook-dlq" {
		t.Errorf("dead letter stream = %q", got)
	}
	if got := fake.addArgs[0].Values.(map[string]any)["error"]; got != "max attempts exhausted" {
		t.Errorf("error field = %v", got)
	}
	if len(fake.acked) != 1 || fake.acked[0] != msg.ID {
		t.Errorf("acked = %v, want [%s]", fake.acked, msg.ID)
	}
}
