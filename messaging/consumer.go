package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godamri/helix-audit/pkg/contextx"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrRetriesExhausted stops the consumer when a record keeps failing past
// MaxRetries. The record stays uncommitted and is redelivered after restart.
var ErrRetriesExhausted = errors.New("messaging: max retries exceeded")

// groupClient is the part of *kgo.Client the consumer loop relies on.
type groupClient interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	AllowRebalance()
	Close()
}

// Consumer reads a set of topics as one consumer group with at-least-once
// semantics: an offset is committed only after the handler returned nil for
// that record and every record before it in the same partition.
type Consumer struct {
	client  groupClient
	logger  *slog.Logger
	cfg     ConsumerConfig
	topics  []string
	handler HandlerFunc
	tracer  trace.Tracer
}

func NewConsumer(kcfg Config, cfg ConsumerConfig, logger *slog.Logger, handler HandlerFunc) (*Consumer, error) {
	topics := ParseTopics(cfg.Topics)
	if len(topics) == 0 {
		return nil, errors.New("messaging: consumer needs at least one topic")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("messaging: consumer needs a group id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "kafka_consumer", "group", cfg.GroupID)

	opts := []kgo.Opt{
		kgo.SeedBrokers(kcfg.Brokers...),
		kgo.ClientID(kcfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		// CRITICAL: We manage offsets manually to ensure At-Least-Once delivery
		kgo.DisableAutoCommit(),
		// Partitions are not revoked while a polled batch is still being handled.
		kgo.BlockRebalanceOnPoll(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			log.Info("Partitions assigned", "partitions", assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			log.Info("Partitions revoked", "partitions", revoked)
		}),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create consumer: %w", err)
	}

	return newConsumer(client, cfg, topics, logger, handler), nil
}

func newConsumer(client groupClient, cfg ConsumerConfig, topics []string, logger *slog.Logger, handler HandlerFunc) *Consumer {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		logger:  logger.With("component", "kafka_consumer", "group", cfg.GroupID),
		cfg:     cfg,
		topics:  topics,
		handler: handler,
		tracer:  otel.Tracer("helix-audit/messaging"),
	}
}

// Topics returns the subscribed topic list.
func (c *Consumer) Topics() []string { return c.topics }

// Start begins the consumption loop. It blocks until ctx is cancelled or a
// record exhausts its retries. Cancelling ctx stops polling; a handler
// attempt already running is allowed to finish and its offset is committed.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting consumer", "topics", c.topics)
	defer func() {
		c.client.Close()
		c.logger.Info("Consumer stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetches := c.client.PollRecords(ctx, c.cfg.MaxPollRecords)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			// Polled but not started: left uncommitted for the next owner.
			c.client.AllowRebalance()
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.logger.Error("Kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		err := c.processFetches(ctx, fetches)
		c.client.AllowRebalance()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// processFetches runs one ordered lane per partition, lanes in parallel.
func (c *Consumer) processFetches(ctx context.Context, fetches kgo.Fetches) error {
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		records := p.Records
		g.Go(func() error {
			return c.processPartition(ctx, records)
		})
	})

	return g.Wait()
}

func (c *Consumer) processPartition(ctx context.Context, records []*kgo.Record) error {
	var (
		lastDone *kgo.Record
		laneErr  error
	)

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		// BLOCKING PROCESS: We do not proceed to the next record until this one is handled.
		if err := c.processWithRetry(ctx, rec); err != nil {
			laneErr = err
			break
		}
		lastDone = rec
	}

	if lastDone != nil {
		c.commit(ctx, lastDone)
	}
	return laneErr
}

// commit runs on a non-cancellable context so shutdown does not lose the
// acknowledgment of work that already completed.
func (c *Consumer) commit(ctx context.Context, rec *kgo.Record) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommitTimeout)
	defer cancel()

	if err := c.client.CommitRecords(commitCtx, rec); err != nil {
		commitFailures.WithLabelValues(rec.Topic).Inc()
		// This implies duplicate delivery potential, which is acceptable (At-Least-Once)
		c.logger.Error("Failed to commit offset",
			"topic", rec.Topic,
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
	}
}

// processWithRetry handles the exponential backoff loop
func (c *Consumer) processWithRetry(ctx context.Context, rec *kgo.Record) error {
	msg := messageFromRecord(rec)
	attempt := 0
	backoff := c.cfg.InitialBackoff

	for {
		err := c.invoke(ctx, msg, attempt)
		if err == nil {
			messagesHandled.WithLabelValues(msg.Topic, "success").Inc()
			return nil
		}

		attempt++

		if c.cfg.MaxRetries > 0 && attempt > c.cfg.MaxRetries {
			messagesHandled.WithLabelValues(msg.Topic, "exhausted").Inc()
			c.logger.Error("Message retries exhausted, stopping consumer",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempts", attempt,
				"error", err,
			)
			return fmt.Errorf("%w: %s[%d]@%d: %w", ErrRetriesExhausted, msg.Topic, msg.Partition, msg.Offset, err)
		}

		messagesHandled.WithLabelValues(msg.Topic, "retry").Inc()
		c.logger.Warn("Transient processing failure, retrying...",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
			"next_retry_in", backoff,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}
}

// invoke runs a single handler attempt. The attempt is detached from
// consumer cancellation and bounded by HandlerTimeout instead.
func (c *Consumer) invoke(ctx context.Context, msg Message, attempt int) error {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.HandlerTimeout)
	defer cancel()

	hctx = otel.GetTextMapPropagator().Extract(hctx, propagation.MapCarrier(msg.Headers))
	hctx, span := c.tracer.Start(hctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int64("messaging.kafka.partition", int64(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
			attribute.Int("messaging.retry_attempt", attempt),
		),
	)
	defer span.End()

	hctx = contextx.WithEntryPoint(hctx, contextx.EntryPointConsumer)
	hctx = contextx.WithRetryAttempt(hctx, attempt)
	if sc := span.SpanContext(); sc.HasTraceID() {
		hctx = contextx.WithTraceID(hctx, sc.TraceID().String())
	}

	start := time.Now()
	err := c.handler(hctx, msg)
	handlerDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
