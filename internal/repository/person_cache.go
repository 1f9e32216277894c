package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/schema"
)

const personKeyPrefix = "issuelog:person:"

// PersonCache is the part of the redis client the resolver cache needs.
type PersonCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedPersonResolver is a read-through redis cache in front of a person resolver. Misses are
// never cached, so people harvested later become resolvable on the next run. Cache failures
// degrade to the uncached path.
type CachedPersonResolver struct {
	next   schema.PersonResolver
	cache  PersonCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedPersonResolver wraps next. A nil cache returns next unchanged.
func NewCachedPersonResolver(next schema.PersonResolver, cache PersonCache, ttl time.Duration, logger *zap.Logger) schema.PersonResolver {
	if cache == nil {
		return next
	}
	return &CachedPersonResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedPersonResolver) ResolvePerson(ctx context.Context, identifier string) (domain.PersonID, error) {
	key := personKeyPrefix + identifier

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		if id, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			return domain.PersonID(id), nil
		}
		c.logger.Warn("discarding malformed cached person", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("person cache read failed", zap.Error(err))
	}

	id, err := c.next.ResolvePerson(ctx, identifier)
	if err != nil {
		return 0, err
	}

	if err := c.cache.Set(ctx, key, strconv.FormatInt(int64(id), 10), c.ttl).Err(); err != nil {
		c.logger.Warn("person cache write failed", zap.Error(err))
	}
	return id, nil
}
