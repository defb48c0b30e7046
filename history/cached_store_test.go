package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts FindByID calls that reach the wrapped store.
type countingStore struct {
	Store
	finds int
}

func (c *countingStore) FindByID(ctx context.Context, id string) (*Record, error) {
	c.finds++
	return c.Store.FindByID(ctx, id)
}

func newCachedFixture(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	inner := &countingStore{Store: NewMemoryStore()}
	return NewCachedStore(inner, rdb, time.Minute, nil), inner, mr
}

func TestCachedStore_CacheAside(t *testing.T) {
	s, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newTestRecord("e-1"))
	require.NoError(t, err)

	first, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	second, err := s.FindByID(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.finds)
	assert.Equal(t, first.EventID, second.EventID)
	assert.True(t, first.EventTimestamp.Equal(second.EventTimestamp))
	assert.True(t, mr.Exists(defaultCachePrefix+id))
	assert.Equal(t, time.Minute, mr.TTL(defaultCachePrefix+id))
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	s, inner, mr := newCachedFixture(t)

	_, err := s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 2, inner.finds)
	assert.False(t, mr.Exists(defaultCachePrefix+"missing"))
}

func TestCachedStore_FailsOpenWhenRedisIsDown(t *testing.T) {
	s, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newTestRecord("e-1"))
	require.NoError(t, err)

	mr.Close()

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, 1, inner.finds)
}

func TestCachedStore_OverwritesCorruptEntry(t *testing.T) {
	s, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newTestRecord("e-1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(defaultCachePrefix+id, "{not json"))

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, 1, inner.finds)

	raw, err := mr.Get(defaultCachePrefix + id)
	require.NoError(t, err)
	assert.Contains(t, raw, `"eventId":"e-1"`)
}
