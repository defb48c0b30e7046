package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuditConfig() Config {
	return Config{
		Enabled:        true,
		ServiceName:    "book-service",
		Sink:           SinkKafka,
		BufferSize:     16,
		EnqueueTimeout: 50 * time.Millisecond,
	}
}

func TestKafkaPublisherKeysByEntityID(t *testing.T) {
	cfg := testAuditConfig()
	producer := mocks.NewAsyncProducer(t, newSaramaConfig(cfg))
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "book-service-audit-logs" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			return fmt.Errorf("unexpected key %q", key)
		}
		value, _ := msg.Value.Encode()
		decoded, err := Unmarshal(value)
		if err != nil {
			return err
		}
		if decoded.EntityID != "42" || decoded.EventType != EventCreated {
			return fmt.Errorf("unexpected payload %s", value)
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, cfg, nil)
	require.NoError(t, pub.Publish(context.Background(), validEvent(EventCreated)))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherExplicitTopic(t *testing.T) {
	cfg := testAuditConfig()
	producer := mocks.NewAsyncProducer(t, newSaramaConfig(cfg))
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "loan-service-audit-logs" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, cfg, nil)
	require.NoError(t, pub.PublishTo(context.Background(), TopicFor("loan-service"), validEvent(EventDeleted)))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherDeliveryFailureIsObservedNotReturned(t *testing.T) {
	cfg := testAuditConfig()
	cfg.ServiceName = "member-service"
	producer := mocks.NewAsyncProducer(t, newSaramaConfig(cfg))
	producer.ExpectInputAndFail(errors.New("leader not available"))

	before := testutil.ToFloat64(deliveryFailures.WithLabelValues("member-service-audit-logs"))

	pub := NewKafkaPublisherWithProducer(producer, cfg, nil)
	require.NoError(t, pub.Publish(context.Background(), validEvent(EventUpdated)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(deliveryFailures.WithLabelValues("member-service-audit-logs")) == before+1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Close())
}

func TestKafkaPublisherAfterClose(t *testing.T) {
	cfg := testAuditConfig()
	producer := mocks.NewAsyncProducer(t, newSaramaConfig(cfg))

	pub := NewKafkaPublisherWithProducer(producer, cfg, nil)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	err := pub.Publish(context.Background(), validEvent(EventCreated))
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestNewSaramaConfigIsValid(t *testing.T) {
	config := newSaramaConfig(testAuditConfig())
	require.NoError(t, config.Validate())
	assert.True(t, config.Producer.Return.Errors)
	assert.Equal(t, "book-service-audit", config.ClientID)
	assert.Equal(t, 16, config.ChannelBufferSize)
}

func TestNewPublisherSelectsSink(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		pub, err := NewPublisher(Config{Enabled: false, Sink: SinkKafka}, nil)
		require.NoError(t, err)
		assert.IsType(t, NoopPublisher{}, pub)
	})

	t.Run("stdout", func(t *testing.T) {
		pub, err := NewPublisher(Config{Enabled: true, ServiceName: "svc", Sink: SinkStdout}, nil)
		require.NoError(t, err)
		assert.IsType(t, &StreamPublisher{}, pub)
		require.NoError(t, pub.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewPublisher(Config{Enabled: true, Sink: "carrier-pigeon"}, nil)
		assert.Error(t, err)
	})
}
