package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	err     error
	stopped chan struct{}
}

func (s *stubRunner) Start(ctx context.Context) error {
	defer close(s.stopped)
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func (s *stubRunner) Topics() []string { return []string{"t"} }

func TestConsumerManagerClose(t *testing.T) {
	m := NewConsumerManager(nil)
	a := &stubRunner{stopped: make(chan struct{})}
	b := &stubRunner{stopped: make(chan struct{})}
	m.Register(a)
	m.Register(b)

	m.Start(context.Background())
	require.NoError(t, m.Close())

	<-a.stopped
	<-b.stopped
	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestConsumerManagerReportsFailures(t *testing.T) {
	m := NewConsumerManager(nil)
	boom := errors.New("boom")
	m.Register(&stubRunner{err: boom, stopped: make(chan struct{})})

	m.Start(context.Background())

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("manager did not notice the failed consumer")
	}
	assert.ErrorIs(t, m.Close(), boom)
}
