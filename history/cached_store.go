package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/cache"
)

const defaultCachePrefix = "audit:log:"

// CachedStore serves FindByID from Redis. Records are immutable, so a cached
// copy never goes stale; the TTL only bounds memory. Every other method goes
// straight to the wrapped Store.
type CachedStore struct {
	Store
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedStore(store Store, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{
		Store:  store,
		rdb:    rdb,
		ttl:    ttl,
		prefix: defaultCachePrefix,
		logger: logger.With("component", "audit_log_cache"),
	}
}

func (s *CachedStore) FindByID(ctx context.Context, id string) (*Record, error) {
	key := s.prefix + id

	var cached Record
	found, err := cache.GetJSON(ctx, s.rdb, key, &cached)
	switch {
	case found:
		cacheLookups.WithLabelValues("hit").Inc()
		return &cached, nil
	case errors.Is(err, cache.ErrCorrupt):
		// Overwritten below.
		s.logger.WarnContext(ctx, "audit log cache entry corrupted", "key", key)
	case err != nil:
		// Fail open: Redis down? Serve from the store.
		s.logger.WarnContext(ctx, "audit log cache unavailable", "error", err)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	rec, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.rdb, key, rec, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to cache audit log", "id", id, "error", err)
	}
	return rec, nil
}
