package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// streamRecord is one NDJSON line written by StreamPublisher.
type streamRecord struct {
	Topic string `json:"topic"`
	Key   string `json:"key"`
	Event Event  `json:"event"`
}

// StreamPublisher writes events as NDJSON to an io.Writer from a background
// worker. It is the local-development stand-in for the bus.
type StreamPublisher struct {
	records      chan streamRecord
	writer       io.Writer
	defaultTopic string
	wg           sync.WaitGroup
	logger       *slog.Logger
	closeOnce    sync.Once

	mu     sync.RWMutex
	closed bool

	blockOnFull    bool
	enqueueTimeout time.Duration

	dropCount   uint64
	lastLogTime time.Time
	dropMu      sync.Mutex
}

func NewStreamPublisher(w io.Writer, cfg Config, logger *slog.Logger) *StreamPublisher {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	p := &StreamPublisher{
		records:        make(chan streamRecord, bufferSize),
		writer:         w,
		defaultTopic:   cfg.DefaultTopic(),
		logger:         logger.With("component", "audit_stream_publisher"),
		blockOnFull:    cfg.BlockOnFull,
		enqueueTimeout: cfg.EnqueueTimeout,
		lastLogTime:    time.Now(),
	}

	p.wg.Add(1)
	go p.worker()

	return p
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	return p.PublishTo(ctx, p.defaultTopic, event)
}

func (p *StreamPublisher) PublishTo(ctx context.Context, topic string, event Event) error {
	rec := streamRecord{Topic: topic, Key: event.EntityID, Event: event}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if !p.blockOnFull {
		select {
		case p.records <- rec:
			eventsPublished.WithLabelValues(string(SinkStdout), outcomeEnqueued).Inc()
			return nil
		default:
			p.handleDrop(event.EventType)
			return ErrBufferFull
		}
	}

	var timeout <-chan time.Time
	if p.enqueueTimeout > 0 {
		timer := time.NewTimer(p.enqueueTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.records <- rec:
		eventsPublished.WithLabelValues(string(SinkStdout), outcomeEnqueued).Inc()
		return nil
	case <-timeout:
		p.handleDrop(event.EventType + "_timeout")
		return ErrBufferFull
	case <-ctx.Done():
		p.handleDrop(event.EventType + "_ctx_cancelled")
		return ctx.Err()
	}
}

// Dropped reports drops not yet flushed into a warning.
func (p *StreamPublisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropCount)
}

func (p *StreamPublisher) handleDrop(sample EventType) {
	eventsPublished.WithLabelValues(string(SinkStdout), outcomeDropped).Inc()
	currentDrops := atomic.AddUint64(&p.dropCount, 1)

	p.dropMu.Lock()
	defer p.dropMu.Unlock()

	if time.Since(p.lastLogTime) >= 5*time.Second {
		p.logger.Warn("audit buffer full, events dropped",
			"strategy", "drop_on_full",
			"total_dropped", currentDrops,
			"sample_event_type", string(sample),
		)
		atomic.StoreUint64(&p.dropCount, 0)
		p.lastLogTime = time.Now()
	}
}

func (p *StreamPublisher) worker() {
	defer p.wg.Done()
	encoder := json.NewEncoder(p.writer)

	for rec := range p.records {
		if err := encoder.Encode(rec); err != nil {
			p.logger.Error("failed to write audit event", "event_id", rec.Event.EventID, "error", err)
		}
	}
}

// Close stops intake and waits until every buffered event is written.
func (p *StreamPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.records)
		p.mu.Unlock()
	})
	p.wg.Wait()
	return nil
}
