package locations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/logger"
)

type Source interface {
	Resolve(ctx context.Context, raw string) (domain.LocationID, bool, error)
}

// negative marks text known not to resolve.
const negative = "-"

const keyPrefix = "jobvyne:loc:"

// RedisCache remembers resolutions, including misses, across runs and
// processes. Redis failures fall through to the wrapped source.
type RedisCache struct {
	rdb  *redis.Client
	next Source
	ttl  time.Duration
	log  logger.Logger
}

func NewRedisCache(rdb *redis.Client, next Source, ttl time.Duration, log logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisCache{rdb: rdb, next: next, ttl: ttl, log: logger.Component(log, "locations:redis")}
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

func cacheKey(raw string) string {
	return keyPrefix + strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

func (c *RedisCache) Resolve(ctx context.Context, raw string) (domain.LocationID, bool, error) {
	key := cacheKey(raw)
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == negative {
			return 0, false, nil
		}
		if id, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return domain.LocationID(id), true, nil
		}
		c.log.Warn("bad cache entry", logger.String("key", key), logger.String("value", val))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("cache read failed", logger.Error(err))
	}

	id, found, err := c.next.Resolve(ctx, raw)
	if err != nil {
		return 0, false, err
	}
	v := negative
	if found {
		v = strconv.FormatInt(int64(id), 10)
	}
	if err := c.rdb.Set(ctx, key, v, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", logger.Error(err))
	}
	return id, found, nil
}
