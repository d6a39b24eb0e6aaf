package redisdb

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

// Client wraps go-redis behind the interfaces.KVStore façade. Every
// value is a JSON string; redis.Nil is translated to a not_found error
// so callers never import the driver.
type Client struct {
	rdb    *redis.Client
	logger *common.Logger
}

// NewClient connects to Redis using the application config. REDIS_URL
// takes precedence over discrete fields when set.
func NewClient(cfg *common.RedisConfig, logger *common.Logger) (*Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, common.WrapError(common.KindConfigInvalid, err, "invalid REDIS_URL")
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr(),
			DB:       cfg.DB,
			Password: cfg.Password,
		}
	}

	opts.PoolSize = cfg.MaxConnections
	if opts.PoolSize <= 0 {
		opts.PoolSize = 50
	}
	opts.DialTimeout = cfg.GetConnectTimeout()
	opts.ReadTimeout = cfg.GetReadTimeout()

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetConnectTimeout())
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, common.WrapError(common.KindRedisUnavailable, err, "redis ping failed at %s", opts.Addr)
	}

	logger.Info().
		Str("addr", opts.Addr).
		Int("db", opts.DB).
		Int("pool_size", opts.PoolSize).
		Msg("Redis connected")

	return &Client{rdb: rdb, logger: logger}, nil
}

// translate maps driver errors to the application taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return common.NewError(common.KindNotFound, "key not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return common.WrapError(common.KindCancelled, err, "redis call cancelled")
	}
	return common.WrapError(common.KindRedisUnavailable, err, "redis call failed")
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	return v, translate(err)
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	return translate(c.rdb.Set(ctx, key, value, 0).Err())
}

func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return translate(c.rdb.Set(ctx, key, value, ttl).Err())
}

func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	return v, translate(err)
}

func (c *Client) HSet(ctx context.Context, key string, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}
	flat := make([]any, 0, len(pairs)*2)
	for k, v := range pairs {
		flat = append(flat, k, v)
	}
	return translate(c.rdb.HSet(ctx, key, flat...).Err())
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.rdb.HGetAll(ctx, key).Result()
	return v, translate(err)
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return translate(c.rdb.HDel(ctx, key, fields...).Err())
}

// ReplaceHash swaps the full hash contents inside one MULTI/EXEC so a
// concurrent reader observes either the old set or the new set.
func (c *Client) ReplaceHash(ctx context.Context, key string, pairs map[string]string, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(pairs) > 0 {
		flat := make([]any, 0, len(pairs)*2)
		for k, v := range pairs {
			flat = append(flat, k, v)
		}
		pipe.HSet(ctx, key, flat...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return translate(err)
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return translate(c.rdb.Del(ctx, keys...).Err())
}

// Scan iterates the keyspace with SCAN (never KEYS) and returns all
// matches for the pattern.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return translate(c.rdb.Expire(ctx, key, ttl).Err())
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return translate(c.rdb.Ping(ctx).Err())
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Compile-time check
var _ interfaces.KVStore = (*Client)(nil)
