package permission

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisCache 多实例共享的缓存，值以 JSON 存储，版本号使用 INCR
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, decode func([]byte) (any, error)) (any, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrap(err, "redis get failed")
	}

	value, err := decode(data)
	if err != nil {
		// 损坏的数据直接删除，按未命中处理
		c.client.Del(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache value")
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *RedisCache) Versions(ctx context.Context, names ...string) ([]uint64, error) {
	values, err := c.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget versions failed")
	}
	out := make([]uint64, len(names))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if out[i], err = strconv.ParseUint(s, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "invalid version %q for %s", s, names[i])
		}
	}
	return out, nil
}

func (c *RedisCache) Bump(ctx context.Context, name string) error {
	return errors.Wrapf(c.client.Incr(ctx, name).Err(), "redis incr %s failed", name)
}

// DeletePrefix 使用 SCAN 遍历，避免 KEYS 阻塞
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return errors.Wrap(err, "redis del failed")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrapf(err, "scan failed for prefix %s", prefix)
	}
	if len(batch) > 0 {
		return errors.Wrap(c.client.Del(ctx, batch...).Err(), "redis del failed")
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
