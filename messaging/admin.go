package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes topics to create on startup.
type TopicSpec struct {
	Partitions        int32 `envconfig:"KAFKA_TOPIC_PARTITIONS" default:"6" yaml:"partitions"`
	ReplicationFactor int16 `envconfig:"KAFKA_TOPIC_REPLICATION" default:"1" yaml:"replication_factor"`
}

// EnsureTopics creates the given topics, treating "already exists" as success.
func EnsureTopics(ctx context.Context, cfg Config, spec TopicSpec, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...), kgo.ClientID(cfg.ClientID))
	if err != nil {
		return fmt.Errorf("kafka: failed to create admin client: %w", err)
	}
	defer client.Close()

	return ensureTopics(ctx, kadm.NewClient(client), spec, topics...)
}

func ensureTopics(ctx context.Context, adm *kadm.Client, spec TopicSpec, topics ...string) error {
	partitions := spec.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := spec.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	resps, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}

	var errs []error
	for _, r := range resps.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			errs = append(errs, fmt.Errorf("topic %s: %w", r.Topic, r.Err))
		}
	}
	return errors.Join(errs...)
}
