package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var (
	ErrPublisherClosed = errors.New("audit: publisher closed")
	ErrBufferFull      = errors.New("audit: publish buffer full")
)

// Publisher hands events to the bus. Implementations key every message by
// EntityID so one entity's events stay ordered, and must not wait for broker
// acknowledgment.
type Publisher interface {
	// Publish sends to the publisher's default topic.
	Publish(ctx context.Context, event Event) error
	PublishTo(ctx context.Context, topic string, event Event) error
	Close() error
}

// NoopPublisher is for disabled auditing, dev and tests.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NoopPublisher) PublishTo(ctx context.Context, topic string, event Event) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }

// NewPublisher builds the publisher selected by cfg.Sink.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}

	switch cfg.Sink {
	case SinkKafka:
		return NewKafkaPublisher(cfg, logger)
	case SinkStdout:
		return NewStreamPublisher(os.Stdout, cfg, logger), nil
	case SinkNoop, "":
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("audit: unknown sink %q", cfg.Sink)
	}
}
