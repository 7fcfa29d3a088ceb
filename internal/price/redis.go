package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RedisCache is a read-through price cache shared between processes.
type RedisCache struct {
	rdb    redis.Cmdable
	next   Oracle
	ttl    time.Duration
	logger *zap.Logger
}

// DialRedis parses url and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisCache(rdb redis.Cmdable, next Oracle, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, next: next, ttl: ttl, logger: logger}
}

func cacheKey(symbol string, chainID uint64) string {
	return fmt.Sprintf("price:%d:%s", chainID, normalize(symbol))
}

// Price serves from redis when possible. Redis errors fall through to the next oracle.
func (c *RedisCache) Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	key := cacheKey(symbol, chainID)

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if value, perr := decimal.NewFromString(val); perr == nil {
			return value, nil
		}
		c.logger.Warn("discarding malformed cached price", zap.String("key", key), zap.String("value", val))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := c.next.Price(ctx, symbol, chainID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.rdb.Set(ctx, key, value.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
