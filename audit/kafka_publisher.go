package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// KafkaPublisher enqueues events on a sarama AsyncProducer.
// Delivery happens on sarama's goroutines; failures surface on drainErrors.
type KafkaPublisher struct {
	producer       sarama.AsyncProducer
	defaultTopic   string
	logger         *slog.Logger
	blockOnFull    bool
	enqueueTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
}

func NewKafkaPublisher(cfg Config, logger *slog.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to start kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer. The producer must
// have Producer.Return.Errors enabled.
func NewKafkaPublisherWithProducer(producer sarama.AsyncProducer, cfg Config, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &KafkaPublisher{
		producer:       producer,
		defaultTopic:   cfg.DefaultTopic(),
		logger:         logger.With("component", "audit_kafka_publisher"),
		blockOnFull:    cfg.BlockOnFull,
		enqueueTimeout: cfg.EnqueueTimeout,
		drained:        make(chan struct{}),
	}

	go p.drainErrors()

	return p
}

func newSaramaConfig(cfg Config) *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0 // record headers carry trace context
	if cfg.ServiceName != "" {
		config.ClientID = cfg.ServiceName + "-audit"
	}

	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	// Same key, same partition: per-entity ordering depends on this.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Producer.Flush.Frequency = 500 * time.Millisecond
	if cfg.FlushFrequency > 0 {
		config.Producer.Flush.Frequency = cfg.FlushFrequency
	}
	config.Producer.Flush.Messages = 100
	if cfg.FlushMessages > 0 {
		config.Producer.Flush.Messages = cfg.FlushMessages
	}
	if cfg.BufferSize > 0 {
		config.ChannelBufferSize = cfg.BufferSize
	}
	return config
}

func (k *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	return k.PublishTo(ctx, k.defaultTopic, event)
}

func (k *KafkaPublisher) PublishTo(ctx context.Context, topic string, event Event) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Key:      sarama.StringEncoder(event.EntityID),
		Value:    sarama.ByteEncoder(payload),
		Headers:  traceHeaders(ctx),
		Metadata: event.EventID,
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrPublisherClosed
	}

	if !k.blockOnFull {
		select {
		case k.producer.Input() <- msg:
			eventsPublished.WithLabelValues(string(SinkKafka), outcomeEnqueued).Inc()
			return nil
		default:
			eventsPublished.WithLabelValues(string(SinkKafka), outcomeDropped).Inc()
			return ErrBufferFull
		}
	}

	timer := time.NewTimer(k.enqueueTimeout)
	defer timer.Stop()

	select {
	case k.producer.Input() <- msg:
		eventsPublished.WithLabelValues(string(SinkKafka), outcomeEnqueued).Inc()
		return nil
	case <-timer.C:
		eventsPublished.WithLabelValues(string(SinkKafka), outcomeDropped).Inc()
		return ErrBufferFull
	case <-ctx.Done():
		eventsPublished.WithLabelValues(string(SinkKafka), outcomeDropped).Inc()
		return ctx.Err()
	}
}

func traceHeaders(ctx context.Context) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return headers
}

func (k *KafkaPublisher) drainErrors() {
	defer close(k.drained)
	for perr := range k.producer.Errors() {
		k.reportFailure(perr)
	}
}

func (k *KafkaPublisher) reportFailure(perr *sarama.ProducerError) {
	deliveryFailures.WithLabelValues(perr.Msg.Topic).Inc()
	k.logger.Error("audit event delivery failed",
		"topic", perr.Msg.Topic,
		"event_id", perr.Msg.Metadata,
		"error", perr.Err,
	)
}

// Close flushes buffered events and stops the producer. Subsequent publishes
// return ErrPublisherClosed.
func (k *KafkaPublisher) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	err := k.producer.Close()
	<-k.drained

	if perrs, ok := err.(sarama.ProducerErrors); ok {
		for _, perr := range perrs {
			k.reportFailure(perr)
		}
		return nil
	}
	return err
}
