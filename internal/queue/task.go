package queue

import (
	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/internal/model"
)

// Message is one queued webhook job as read from a stream. Identity is the
// queue-assigned stream entry ID; the job carries nothing but the raw event
// and its delivery bookkeeping.
type Message struct {
	ID         string
	Source     model.Source
	EventID    int64
	Payload    []byte
	EnqueuedAt int64
	Attempt    int
	TraceID    string
	Raw        redis.XMessage
}

// Stats reports the state of one topic's stream.
type Stats struct {
	Stream    string `json:"stream"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

func completedKey(stream string) string {
	return stream + ":completed"
}
