package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared AvailabilityCache for multi-replica
// deployments. Per-entity key sets make invalidation a set sweep instead
// of a keyspace scan.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	CacheRequestsTotal.WithLabelValues("hit").Inc()
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	// Track the key under its entity so invalidation can find it. The set
	// outlives individual entries slightly; stale members are harmless.
	setKey := keysSetFor(key)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, 2*ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) InvalidateEntity(ctx context.Context, entityID string) error {
	setKey := "avail-keys:" + entityID
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis smembers %s: %w", setKey, err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del entity %s keys: %w", entityID, err)
		}
	}
	return c.client.Del(ctx, setKey).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// keysSetFor maps an availability key back to its entity's tracking set.
func keysSetFor(key string) string {
	// Key shape: avail:<entity>:<terms>.
	rest := key[len("avail:"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return "avail-keys:" + rest[:i]
		}
	}
	return "avail-keys:" + rest
}
