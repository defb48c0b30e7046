package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeSyncProducer struct {
	records []*kgo.Record
	err     error
	pingErr error
	closed  bool
}

func (f *fakeSyncProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeSyncProducer) Ping(context.Context) error { return f.pingErr }

func (f *fakeSyncProducer) Close() { f.closed = true }

func TestProducerPublish(t *testing.T) {
	fake := &fakeSyncProducer{}
	p := newProducer(fake, nil)

	require.NoError(t, p.Publish(context.Background(), "audit-logs-dlq", "42", []byte(`{}`)))
	require.Len(t, fake.records, 1)
	assert.Equal(t, "audit-logs-dlq", fake.records[0].Topic)
	assert.Equal(t, []byte("42"), fake.records[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, fake.closed)
}

func TestProducerPublishError(t *testing.T) {
	fake := &fakeSyncProducer{err: errors.New("not leader")}
	p := newProducer(fake, nil)

	err := p.Publish(context.Background(), "t", "k", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not leader")
}

func TestProducerPing(t *testing.T) {
	fake := &fakeSyncProducer{pingErr: errors.New("no brokers")}
	p := newProducer(fake, nil)

	assert.EqualError(t, p.Ping(context.Background()), "no brokers")
	fake.pingErr = nil
	assert.NoError(t, p.Ping(context.Background()))
}
