package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/messaging"
)

const (
	outcomeStored      = "stored"
	outcomeDuplicate   = "duplicate"
	outcomeRejected    = "rejected"
	outcomeStoreFailed = "store_failed"
)

// DeadLetterPublisher receives messages the processor refuses to store.
// It must return only after the broker has accepted the copy.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// deadLetter is the envelope written to the dead-letter topic.
type deadLetter struct {
	OriginalTopic     string    `json:"originalTopic"`
	OriginalPartition int32     `json:"originalPartition"`
	OriginalOffset    int64     `json:"originalOffset"`
	Error             string    `json:"error"`
	FailedAt          time.Time `json:"failedAt"`
	Payload           string    `json:"payload"`
}

// Processor turns bus messages into stored audit records.
//
// A message that cannot be decoded or fails validation is never going to
// succeed, so it is dead-lettered (or dropped) and acknowledged. A failure to
// persist is returned, which keeps the offset uncommitted until the store recovers.
type Processor struct {
	store    Store
	dlq      DeadLetterPublisher
	dlqTopic string
	now      func() time.Time
	logger   *slog.Logger
}

type ProcessorOption func(*Processor)

// WithDeadLetter routes rejected messages to topic through pub.
func WithDeadLetter(pub DeadLetterPublisher, topic string) ProcessorOption {
	return func(p *Processor) {
		p.dlq = pub
		p.dlqTopic = topic
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(store Store, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "audit_history_processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle satisfies messaging.HandlerFunc.
func (p *Processor) Handle(ctx context.Context, msg messaging.Message) error {
	event, err := audit.Unmarshal(msg.Value)
	if err != nil {
		return p.reject(ctx, msg, err)
	}
	if err := event.Validate(); err != nil {
		return p.reject(ctx, msg, err)
	}

	rec := NewRecord(event, msg, p.now().UTC())
	id, err := p.store.Insert(ctx, rec)
	switch {
	case err == nil:
		messagesProcessed.WithLabelValues(outcomeStored).Inc()
		p.logger.DebugContext(ctx, "audit log stored",
			"id", id,
			"event_id", event.EventID,
			"entity_id", event.EntityID,
		)
		return nil
	case errors.Is(err, ErrDuplicateEvent):
		// Redelivery after a crash between insert and commit.
		messagesProcessed.WithLabelValues(outcomeDuplicate).Inc()
		p.logger.InfoContext(ctx, "audit event already recorded",
			"id", id,
			"event_id", event.EventID,
		)
		return nil
	default:
		messagesProcessed.WithLabelValues(outcomeStoreFailed).Inc()
		return fmt.Errorf("history: store event %s: %w", event.EventID, err)
	}
}

func (p *Processor) reject(ctx context.Context, msg messaging.Message, cause error) error {
	messagesProcessed.WithLabelValues(outcomeRejected).Inc()

	log := p.logger.With(
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", cause,
	)

	if p.dlq == nil || p.dlqTopic == "" {
		log.WarnContext(ctx, "dropping malformed audit message")
		return nil
	}

	envelope, err := json.Marshal(deadLetter{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		Error:             cause.Error(),
		FailedAt:          p.now().UTC(),
		Payload:           string(msg.Value),
	})
	if err != nil {
		return fmt.Errorf("history: encode dead letter: %w", err)
	}

	if err := p.dlq.Publish(ctx, p.dlqTopic, string(msg.Key), envelope); err != nil {
		return fmt.Errorf("history: dead-letter to %s: %w", p.dlqTopic, err)
	}
	log.WarnContext(ctx, "malformed audit message dead-lettered", "dlq_topic", p.dlqTopic)
	return nil
}
