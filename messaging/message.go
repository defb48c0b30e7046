package messaging

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one record handed to a HandlerFunc.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// HandlerFunc defines the signature for message processing.
// Return error to trigger Retry.
// Return nil to Commit Offset (Success or Poison Pill).
type HandlerFunc func(ctx context.Context, msg Message) error

func messageFromRecord(rec *kgo.Record) Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
