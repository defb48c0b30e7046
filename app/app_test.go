package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/log"
)

func TestRunner_HooksRunInReverse(t *testing.T) {
	r := NewRunner(log.Discard())

	var order []string
	r.OnShutdown("store", func(context.Context) error { order = append(order, "store"); return nil })
	r.OnShutdown("consumer", func(context.Context) error { order = append(order, "consumer"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"consumer", "store"}, order)
}

func TestRunner_JoinsErrors(t *testing.T) {
	r := NewRunner(log.Discard())
	hookErr := errors.New("flush failed")
	runErr := errors.New("consumer crashed")

	ran := false
	r.OnShutdown("producer", func(context.Context) error { return hookErr })
	r.OnShutdown("db", func(context.Context) error { ran = true; return nil })

	err := r.run(context.Background(), func(context.Context) error { return runErr })
	assert.ErrorIs(t, err, runErr)
	assert.ErrorIs(t, err, hookErr)
	assert.True(t, ran, "a failing hook must not stop later hooks")
}
