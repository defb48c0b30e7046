package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Runner is satisfied by *Consumer.
type Runner interface {
	Start(ctx context.Context) error
	Topics() []string
}

// ConsumerManager handles the lifecycle of multiple Kafka consumers.
type ConsumerManager struct {
	logger    *slog.Logger
	consumers []Runner
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	done      chan struct{}

	mu   sync.Mutex
	errs []error
}

func NewConsumerManager(logger *slog.Logger) *ConsumerManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerManager{
		logger: logger.With("component", "consumer_manager"),
		done:   make(chan struct{}),
	}
}

// Register adds a consumer to be managed. Call before Start.
func (m *ConsumerManager) Register(c Runner) {
	m.consumers = append(m.consumers, c)
}

// Start starts all registered consumers in background goroutines.
func (m *ConsumerManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, c := range m.consumers {
		m.wg.Add(1)
		go func(consumer Runner) {
			defer m.wg.Done()
			if err := consumer.Start(ctx); err != nil {
				m.logger.Error("Consumer stopped with error", "topics", consumer.Topics(), "error", err)
				m.mu.Lock()
				m.errs = append(m.errs, err)
				m.mu.Unlock()
			}
		}(c)
	}

	go func() {
		m.wg.Wait()
		close(m.done)
	}()
}

// Done is closed once every consumer has returned, either after Close or
// because a consumer failed on its own.
func (m *ConsumerManager) Done() <-chan struct{} {
	return m.done
}

// Close stops all consumers and waits for in-flight messages to finish.
// It returns the errors consumers stopped with, if any.
func (m *ConsumerManager) Close() error {
	m.logger.Info("Stopping all consumers...")
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.logger.Info("All consumers stopped gracefully")

	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.errs...)
}
