package audit

import "time"

type Sink string

const (
	SinkKafka  Sink = "kafka"
	SinkStdout Sink = "stdout"
	SinkNoop   Sink = "noop"
)

type Config struct {
	// Enabled determines if audit events are emitted at all.
	Enabled bool `envconfig:"AUDIT_ENABLED" default:"true" yaml:"enabled"`

	// ServiceName identifies the emitting service and derives the default topic.
	ServiceName string `envconfig:"AUDIT_SERVICE_NAME" validate:"required" yaml:"service_name"`

	// Topic overrides the default "<service>-audit-logs" topic.
	Topic string `envconfig:"AUDIT_TOPIC" yaml:"topic"`

	Sink    Sink     `envconfig:"AUDIT_SINK" default:"kafka" validate:"oneof=kafka stdout noop" yaml:"sink"`
	Brokers []string `envconfig:"AUDIT_BROKERS" validate:"required_if=Sink kafka" yaml:"brokers"`

	// BufferSize is the size of the async channel.
	BufferSize int `envconfig:"AUDIT_BUFFER_SIZE" default:"1024" validate:"gte=1" yaml:"buffer_size"`

	// BlockOnFull determines the strategy when buffer is full.
	// TRUE: waits up to EnqueueTimeout (or ctx) for room.
	// FALSE: drops the event and increments the drop metric.
	// Business operations must never hang on auditing, so the default is FALSE.
	BlockOnFull bool `envconfig:"AUDIT_BLOCK_ON_FULL" default:"false" yaml:"block_on_full"`

	// EnqueueTimeout caps how long Publish may wait to hand an event to the producer.
	EnqueueTimeout time.Duration `envconfig:"AUDIT_ENQUEUE_TIMEOUT" default:"250ms" yaml:"enqueue_timeout"`

	FlushFrequency time.Duration `envconfig:"AUDIT_FLUSH_FREQUENCY" default:"500ms" yaml:"flush_frequency"`
	FlushMessages  int           `envconfig:"AUDIT_FLUSH_MESSAGES" default:"100" yaml:"flush_messages"`
}

// DefaultTopic is the topic events go to when no explicit topic is given.
func (c Config) DefaultTopic() string {
	if c.Topic != "" {
		return c.Topic
	}
	return TopicFor(c.ServiceName)
}
