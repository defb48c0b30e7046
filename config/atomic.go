package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Container holds the config safely for concurrent access.
type Container[T any] struct {
	store    atomic.Pointer[T]
	mu       sync.Mutex // Only for writing updates
	validate *validator.Validate
	onUpdate []func(old, updated *T)
}

func NewContainer[T any](initial *T) *Container[T] {
	c := &Container[T]{validate: validator.New()}
	c.store.Store(initial)
	return c
}

// Get returns the current snapshot. Callers must not mutate it.
func (c *Container[T]) Get() *T {
	return c.store.Load()
}

// OnUpdate registers fn to run after every accepted Update.
func (c *Container[T]) OnUpdate(fn func(old, updated *T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// Update validates and swaps the snapshot. An invalid config leaves the
// current one in place.
func (c *Container[T]) Update(next *T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate.Struct(next); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	old := c.store.Swap(next)
	for _, fn := range c.onUpdate {
		fn(old, next)
	}
	return nil
}

// Reload loads a fresh snapshot through l and applies it.
func (c *Container[T]) Reload(l *Loader[T]) error {
	next, err := l.Load()
	if err != nil {
		return err
	}
	return c.Update(next)
}
