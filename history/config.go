package history

import "time"

type Config struct {
	// DLQTopic receives messages that cannot be decoded or fail validation.
	// Empty means such messages are logged and acknowledged.
	DLQTopic string `envconfig:"HISTORY_DLQ_TOPIC" default:"audit-logs-dlq" yaml:"dlq_topic"`

	EnsureSchema bool `envconfig:"HISTORY_ENSURE_SCHEMA" default:"true" yaml:"ensure_schema"`
	CreateTopics bool `envconfig:"HISTORY_CREATE_TOPICS" default:"false" yaml:"create_topics"`

	CacheEnabled bool          `envconfig:"HISTORY_CACHE_ENABLED" default:"false" yaml:"cache_enabled"`
	CacheTTL     time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"10m" yaml:"cache_ttl"`

	// Store selects the backend: postgres or memory.
	Store string `envconfig:"HISTORY_STORE" default:"postgres" validate:"oneof=postgres memory" yaml:"store"`
}
