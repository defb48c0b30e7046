package messaging

import (
	"strings"
	"time"
)

type Config struct {
	Brokers  []string `envconfig:"KAFKA_BROKERS" validate:"required,min=1" yaml:"brokers"`
	ClientID string   `envconfig:"KAFKA_CLIENT_ID" default:"helix-audit" yaml:"client_id"`
}

// ConsumerConfig holds configuration for the Kafka consumer.
type ConsumerConfig struct {
	// Topics is a comma-separated list, e.g. "book-service-audit-logs,loan-service-audit-logs".
	Topics  string `envconfig:"KAFKA_CONSUMER_TOPICS" validate:"required" yaml:"topics"`
	GroupID string `envconfig:"KAFKA_CONSUMER_GROUP" default:"audit-history" validate:"required" yaml:"group_id"`
	// MaxRetries is the number of retries after the first failed attempt
	// before the consumer stops. 0 retries forever.
	MaxRetries int `envconfig:"KAFKA_CONSUMER_MAX_RETRIES" default:"0" validate:"gte=0" yaml:"max_retries"`
	// InitialBackoff defines the wait time for the first retry.
	InitialBackoff time.Duration `envconfig:"KAFKA_CONSUMER_INITIAL_BACKOFF" default:"100ms" yaml:"initial_backoff"`
	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration `envconfig:"KAFKA_CONSUMER_MAX_BACKOFF" default:"30s" yaml:"max_backoff"`
	// Concurrency caps how many partitions are processed at once.
	Concurrency    int           `envconfig:"KAFKA_CONSUMER_CONCURRENCY" default:"8" validate:"gte=1" yaml:"concurrency"`
	MaxPollRecords int           `envconfig:"KAFKA_CONSUMER_MAX_POLL_RECORDS" default:"500" validate:"gte=1" yaml:"max_poll_records"`
	HandlerTimeout time.Duration `envconfig:"KAFKA_CONSUMER_HANDLER_TIMEOUT" default:"30s" yaml:"handler_timeout"`
	CommitTimeout  time.Duration `envconfig:"KAFKA_CONSUMER_COMMIT_TIMEOUT" default:"10s" yaml:"commit_timeout"`
}

func (c *ConsumerConfig) applyDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 10 * time.Second
	}
}

// ParseTopics splits a comma-separated topic list, dropping blanks and duplicates.
func ParseTopics(list string) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, t := range strings.Split(list, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics
}
